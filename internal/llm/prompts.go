package llm

import "github.com/ekuelkpodar/DocumentIntelligencePipeline/constants"

const systemPrompt = "You are a document extraction specialist. Return ONLY JSON that matches the provided schema. " +
	"Use null for fields you cannot find. Monetary values are numbers, not strings. Dates use YYYY-MM-DD."

const classificationPrompt = `Look at this document image and determine what type of document it is.

Document types:
- invoice: commercial invoices with vendor/customer info, line items, totals, payment terms
- receipt: purchase receipts from stores/restaurants with merchant info, items, payment details
- menu: restaurant menus with dishes, descriptions, prices
- form: structured forms with labeled fields
- contract: legal contracts with parties, terms, signatures
- unknown: cannot determine or does not fit other categories

Respond with a JSON object:
{"document_type": "...", "confidence": 0.95, "reasoning": "brief explanation"}

Base the classification on visual layout and content structure. Confidence is between 0.0 and 1.0.`

const invoicePrompt = `Analyze this invoice and extract all relevant information.

Extract: invoice_number, invoice_date (YYYY-MM-DD), due_date, purchase_order_number;
vendor {name, address, tax_id, email, phone}; customer {name, address, account_number};
line_items [{line_number, item_code, description, quantity, unit, unit_price, discount_percent, tax_percent, line_total}];
subtotal, tax_amount, tax_rate, discount_amount, shipping_amount, total_amount, currency (3-letter code);
payment_terms, payment_method, bank_account, notes.

Also report extraction_confidence (0.0-1.0) and warnings (list of uncertainties).

Calculate line totals if not explicitly shown. If line items do not sum to the
subtotal, note the discrepancy in warnings.`

const receiptPrompt = `Analyze this receipt and extract all information.

Extract: merchant {name, address, phone}; receipt_number, transaction_date (YYYY-MM-DD),
transaction_time (HH:MM:SS, 24h); line_items [{description, quantity, unit_price, line_total}];
subtotal, tax_amount, tip_amount, total_amount, currency;
payment_method, card_last_four; category (one of: food_dining, grocery, retail, travel,
entertainment, services, healthcare, fuel, other).

Also report extraction_confidence (0.0-1.0) and warnings.

Extract all visible line items, calculate totals if not clearly shown, and choose
the most appropriate category.`

const menuPrompt = `Analyze this restaurant menu and extract all menu items.

Extract: restaurant {name, cuisine_type, menu_type};
items [{category, name, description, price, currency, is_vegetarian, is_vegan,
is_gluten_free, is_spicy, spice_level, allergens, calories}].

Also report extraction_confidence (0.0-1.0) and warnings.

List ALL visible items, preserve category organization, handle market-price items
with price = null, and look for dietary symbols.`

// PromptFor returns the extraction instruction set for a document type.
func PromptFor(docType constants.DocumentType) (string, bool) {
	switch docType {
	case constants.TypeInvoice:
		return invoicePrompt, true
	case constants.TypeReceipt:
		return receiptPrompt, true
	case constants.TypeMenu:
		return menuPrompt, true
	}
	return "", false
}

package classifier

import "strings"

// DefaultCategories is the category list offered to the model.
var DefaultCategories = []string{
	"Salary", "Food", "Transport", "Health", "Services", "Fees",
	"Shopping", "Cleaning", "AI", "Conversion", "Balance", "Other",
}

func writeSchema(b *strings.Builder, opts Options) {
	b.WriteString("Output STRICT JSON only: one object, no comments, no trailing commas, no extra text.\n\n")
	b.WriteString("The object must have these fields:\n")
	b.WriteString("- \"type\": \"Income\", \"Expense\" or \"Transfer\" (a currency conversion is a Transfer)\n")
	b.WriteString("- \"category\": string, one of the categories below\n")
	b.WriteString("- \"location\": string or \"\" (where the money is held)\n")
	b.WriteString("- \"currency\": string (\"USD\", \"USDT\" or \"" + opts.LocalCurrency + "\")\n")
	b.WriteString("- \"amount\": positive number\n")
	b.WriteString("- \"description\": short string\n")
	b.WriteString("- \"destination_currency\": string or null (Transfer only)\n")
	b.WriteString("- \"destination_amount\": number or null (Transfer only)\n")
	b.WriteString("- \"is_credit\": boolean, true when the purchase is financed on a credit line\n")
	b.WriteString("- \"total_credit_amount\": number or null (full price of a credit purchase)\n")
	b.WriteString("- \"credit_line\": \"Daily\", \"Principal\" or \"\"\n")
	b.WriteString("- \"is_installment_payment\": boolean, true when paying an installment (cuota) of an existing debt\n")
	b.WriteString("- \"debt_reference\": string or null (debt ID like DEBT-3, or words from its description)\n")
	b.WriteString("- \"date\": \"YYYY-MM-DD\" or \"\"\n\n")

	b.WriteString("Use ONLY the following categories:\n")
	for _, c := range opts.Categories {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\n")
}

func writeRules(b *strings.Builder, opts Options) {
	b.WriteString("Rules:\n")
	b.WriteString("- Amounts in \"" + opts.LocalCurrency + "\", \"bs\", \"bolivares\" use currency \"" + opts.LocalCurrency + "\".\n")
	b.WriteString("- \"usdt\", \"tether\" or \"binance\" use currency \"USDT\"; \"$\", \"dolares\", \"usd\" use \"USD\".\n")
	b.WriteString("- Words like \"gaste\", \"pague\", \"compre\" mean Expense; \"cobre\", \"recibi\", \"sueldo\" mean Income.\n")
	b.WriteString("- \"cambie\" or \"converti\" mean Transfer with category \"Conversion\".\n")
	b.WriteString("- \"a credito\", \"cashea\" or \"financiado\" mean is_credit true; \"amount\" is what was paid today.\n")
	b.WriteString("- \"cuota\" or \"abono\" mean is_installment_payment true with category \"Other\".\n")
	b.WriteString("- Leave \"location\" empty unless the message names it.\n")
	b.WriteString("- If you are unsure about the category, use \"Other\".\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n")
}

func buildTextPrompt(opts Options) string {
	var b strings.Builder
	b.WriteString("You classify personal finance messages written in Spanish or English.\n\n")
	writeSchema(&b, opts)
	writeRules(&b, opts)
	return b.String()
}

func buildReceiptPrompt(opts Options) string {
	var b strings.Builder
	b.WriteString("You read the attached receipt or payment screenshot.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Extract the TOTAL paid, the currency and the merchant.\n")
	b.WriteString("- Use the merchant and the main items as the description.\n")
	b.WriteString("- Use the receipt date when it is printed.\n")
	b.WriteString("- A receipt is an Expense unless it clearly shows money received.\n\n")
	writeSchema(&b, opts)
	writeRules(&b, opts)
	return b.String()
}

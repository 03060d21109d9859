package pipeline

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/just-save/internal/domain"
)

// formatAmount renders an amount with exactly two decimals.
func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

const transactionShape = `[{"date": "the date as shown", "description": "merchant/payee name cleaned up", "amount": number, "type": "debit" or "credit"}]`

// BuildCSVPrompt asks the engine to extract transactions from CSV text whose
// column layout is unknown.
func BuildCSVPrompt(csvText string) string {
	var b strings.Builder

	b.WriteString("You are a bank statement parser. Extract ALL transactions from this CSV bank statement.\n\n")

	b.WriteString("IMPORTANT: Banks use many different CSV formats. You must identify columns by their meaning, not by a fixed header name:\n")
	b.WriteString("- Which column contains the date (could be \"Date\", \"Transaction Date\", \"Posted Date\", \"Value Date\", etc.)\n")
	b.WriteString("- Which column contains the description (could be \"Description\", \"Memo\", \"Merchant\", \"Payee\", \"Details\", \"Narrative\", etc.)\n")
	b.WriteString("- Which column contains the amount (could be \"Amount\", \"Debit\", \"Credit\", \"Withdrawal\", \"Deposit\", separate debit/credit columns, etc.)\n")
	b.WriteString("- Whether amounts are signed positive/negative, or split across separate debit/credit columns\n\n")

	b.WriteString("Return ONLY a valid JSON array with this exact structure:\n")
	b.WriteString(transactionShape + "\n\n")

	b.WriteString("RULES:\n")
	b.WriteString("1. Extract EVERY transaction row - do not skip any\n")
	b.WriteString("2. Amount must be a positive number; the direction goes in \"type\"\n")
	b.WriteString("3. Type is \"debit\" for money spent/withdrawn/payments out, \"credit\" for money received/deposits/refunds\n")
	b.WriteString("4. Clean up descriptions - remove excessive whitespace and trailing reference numbers, keep the merchant name clear\n")
	b.WriteString("5. Skip header rows, summary rows and balance rows - only actual transactions\n")
	b.WriteString("6. If there are separate \"Debit\" and \"Credit\" columns, use whichever has a value\n")
	b.WriteString("7. Keep dates exactly as shown; handle different date formats gracefully\n")
	b.WriteString("8. If a row doesn't look like a transaction (no amount, summary line, etc.), skip it\n\n")

	b.WriteString("Do NOT wrap the response in code fences.\n\n")

	b.WriteString("CSV Content:\n")
	b.WriteString(csvText)

	return b.String()
}

// BuildPDFPrompt asks the engine to extract transactions from text pulled out
// of a PDF statement, where descriptions and amounts are laid out in columns.
func BuildPDFPrompt(pdfText string) string {
	var b strings.Builder

	b.WriteString("Extract ALL transactions from this bank or credit card statement as a JSON array.\n\n")
	b.WriteString("RESPOND WITH ONLY A JSON ARRAY - NO OTHER TEXT.\n\n")

	b.WriteString("Format: " + transactionShape + "\n\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Transaction lines look like: \"Oct 20 Oct 20 DELIVEROO LONDON\", with amounts in a separate column\n")
	b.WriteString("- Match each transaction description to its amount BY POSITION (1st transaction = 1st amount)\n")
	b.WriteString("- Amount must be a positive number\n")
	b.WriteString("- Type is \"debit\" for purchases and payments out, \"credit\" for refunds and money in (amounts marked CR are credits)\n")
	b.WriteString("- SKIP summary lines such as \"Total new spend transactions\", balances brought forward and interest summaries\n")
	b.WriteString("- Use the statement's own currency amounts only, never converted amounts\n\n")

	b.WriteString("Statement:\n")
	b.WriteString(pdfText)
	b.WriteString("\n\nRESPOND WITH ONLY THE JSON ARRAY, NOTHING ELSE:")

	return b.String()
}

// BuildAnalysisPrompt asks for subscriptions, category assignments and insights
// over debits. Transactions are numbered from 1 in the order given; the
// response refers back to them by that number.
func BuildAnalysisPrompt(debits []domain.Transaction, totalSpent float64) string {
	var b strings.Builder

	b.WriteString("You are a personal finance analyst. Analyze these bank transactions and provide a comprehensive breakdown.\n\n")

	b.WriteString("TRANSACTIONS (all debits/spending):\n")
	for i, t := range debits {
		fmt.Fprintf(&b, "%d. %s | %s | %s\n", i+1, t.Date, t.Description, formatAmount(t.Amount))
	}
	b.WriteString("\n")

	b.WriteString("TOTAL SPENT: " + formatAmount(totalSpent) + "\n\n")

	b.WriteString("Analyze and return a JSON object with this EXACT structure:\n\n")
	b.WriteString(`{
  "subscriptions": [
    {
      "name": "Clean service name (e.g., 'Netflix', 'Spotify', 'Gym Membership')",
      "amount": average monthly amount as number,
      "frequency": "weekly" | "monthly" | "quarterly" | "annual" | "unknown",
      "confidence": "high" | "medium" | "low",
      "transactionIndices": [array of transaction numbers from the list above]
    }
  ],
  "categories": [
    {
      "category": "Category Name",
      "transactionIndices": [array of transaction numbers]
    }
  ],
  "insights": {
    "overview": "1-2 sentence summary of spending patterns",
    "insight": "1 notable observation about their spending (subscriptions, habits, etc.)",
    "recommendation": "1 specific, actionable tip to save money"
  }
}`)
	b.WriteString("\n\n")

	b.WriteString("SUBSCRIPTION DETECTION RULES:\n")
	b.WriteString("- Look for recurring charges (same merchant, similar amounts appearing multiple times)\n")
	b.WriteString("- Common subscriptions: streaming (Netflix, Spotify, Disney+, YouTube), software (Adobe, Microsoft), fitness (gyms, apps), utilities, insurance, phone plans\n")
	b.WriteString("- Detect frequency by analyzing dates between similar transactions\n")
	b.WriteString("- \"high\" confidence = exact same amount, clear pattern; \"medium\" = similar amounts; \"low\" = might be subscription\n")
	b.WriteString("- Include the transaction numbers that belong to each subscription\n\n")

	b.WriteString("CATEGORY RULES - Use ONLY these categories:\n")
	for _, c := range domain.Categories {
		fmt.Fprintf(&b, "- %q - %s\n", c.Name, c.Description)
	}
	b.WriteString("\n")

	b.WriteString("IMPORTANT:\n")
	b.WriteString("- Every transaction must be assigned to exactly ONE category\n")
	b.WriteString("- A transaction can be both in a subscription AND in a category\n")
	b.WriteString("- Be conversational and friendly in insights, no finance jargon\n")
	b.WriteString("- Return ONLY valid JSON, no markdown formatting\n")

	return b.String()
}

// BuildExplainPrompt asks for a short plain-language explanation of an analysis.
func BuildExplainPrompt(a *domain.Analysis) string {
	var b strings.Builder

	b.WriteString("You are a personal finance advisor. Analyze this spending data and provide clear, actionable insights in 3-4 short paragraphs.\n\n")

	b.WriteString("Total Spent: " + formatAmount(a.TotalSpent) + "\n\n")

	fmt.Fprintf(&b, "Subscriptions Found (%d):\n", len(a.Subscriptions))
	if len(a.Subscriptions) == 0 {
		b.WriteString("None detected\n")
	}
	for _, s := range a.Subscriptions {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", s.Name, formatAmount(s.Amount), s.Frequency)
	}
	b.WriteString("\n")

	b.WriteString("Spending by Category:\n")
	for _, c := range a.CategorySpending {
		fmt.Fprintf(&b, "- %s: %s (%s%%)\n", c.Category, formatAmount(c.Total), decimal.NewFromFloat(c.Percentage).StringFixed(1))
	}
	b.WriteString("\n")

	b.WriteString("Please provide:\n")
	b.WriteString("1. A summary of their spending patterns (1-2 sentences)\n")
	b.WriteString("2. Notable insights about subscriptions or categories (1-2 sentences)\n")
	b.WriteString("3. One specific, actionable recommendation to save money (1-2 sentences)\n\n")
	b.WriteString("Keep it conversational and friendly, and avoid finance jargon. Focus on what's interesting or surprising about their spending.")

	return b.String()
}

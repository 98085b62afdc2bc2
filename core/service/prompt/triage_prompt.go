// Package prompt renders classification prompts.
package prompt

import (
	"fmt"
	"strings"

	"triage_server/core/domain"
)

const rolePrompt = `You are an automated email triage assistant.
1. Analyze the email below.
2. Select the BEST matching label from this list:
`

const disambiguationRules = `
Rules for overlapping labels:
- Purchase receipts, order confirmations and shipping notices are transactional mail, not promotions.
- Sales, coupons, discount offers and marketing newsletters are promotions, even from a shop you bought from.
- Bank, card and brokerage statements, invoices and bills are financial statements, not receipts.
- Product announcements, account notices, security alerts and release notes are updates.
- Mail from colleagues, clients or work tools is work, even when informal. Mail from friends and family is personal.
- Choose only a label from the list above, spelled exactly as shown. If nothing fits, choose "Manual Sort".
`

const metadataPrompt = `
3. Extract/Infer the following metadata:
   - Confidence Score (1-10)
   - Urgency (High/Medium/Low)
   - Category (Work/Personal/Finance/Social/Promotions/Updates)
   - Sentiment (Positive/Neutral/Negative)
   - Action Required? (true/false)
`

var fieldExamples = map[string]string{
	"label":          `"Selected Label Name"`,
	"reasoning":      `"One short sentence explaining the choice"`,
	"confidence":     `8`,
	"urgency":        `"Medium"`,
	"category":       `"Work"`,
	"sentiment":      `"Neutral"`,
	"actionRequired": `false`,
}

// Builder renders a prompt for a classification request. Build is a pure
// function of the request and the profile.
type Builder struct {
	profile domain.ResultProfile
}

func NewBuilder(profile domain.ResultProfile) *Builder {
	return &Builder{profile: profile}
}

// Build returns byte-identical output for identical requests.
func (b *Builder) Build(req domain.ClassificationRequest) string {
	var sb strings.Builder

	sb.WriteString(rolePrompt)
	for _, entry := range req.Taxonomy {
		if entry.Name == domain.ManualSortLabel {
			continue
		}
		fmt.Fprintf(&sb, "- %q\n", entry.Name)
		if entry.HasExample() {
			fmt.Fprintf(&sb, "  Example: %s\n", oneLine(entry.Example))
		}
	}
	fmt.Fprintf(&sb, "- %q (if unsure)\n", domain.ManualSortLabel)

	sb.WriteString(disambiguationRules)
	if b.profile.Extended {
		sb.WriteString(metadataPrompt)
	}

	sb.WriteString("\nReturn ONLY a valid JSON object with exactly these fields and nothing else:\n{\n")
	fields := b.profile.Fields()
	for i, f := range fields {
		sep := ","
		if i == len(fields)-1 {
			sep = ""
		}
		fmt.Fprintf(&sb, "  %q: %s%s\n", f, fieldExamples[f], sep)
	}
	sb.WriteString("}\n")

	fmt.Fprintf(&sb, "\nSender: %s\nSubject: %s\n\nEmail Body:\n%s\n", oneLine(req.Sender), oneLine(req.Subject), req.Body)
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

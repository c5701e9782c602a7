package resolver

import "regexp"

// mentionPatterns maps a compiled pattern to the entity type it implies.
// Checked in order; the first match wins. These mirror the external
// identifier formats the domain database actually issues (invoice
// numbers, order numbers, etc.) so a bare mention like "INV-4821" can
// reach lazy-create (stage 5) with the right type hint instead of
// always being tried as a customer.
var mentionPatterns = []struct {
	re         *regexp.Regexp
	entityType string
}{
	{regexp.MustCompile(`(?i)^INV-\d+$`), "invoice"},
	{regexp.MustCompile(`(?i)^SO-\d+$`), "sales_order"},
	{regexp.MustCompile(`(?i)^WO-\d+$`), "work_order"},
	{regexp.MustCompile(`(?i)^PAY-\d+$`), "payment"},
	{regexp.MustCompile(`(?i)^TASK-\d+$`), "task"},
}

// ClassifyMentionType guesses the entity type a bare mention names from
// its surface form, falling back to "customer" when nothing matches —
// customers are the only entity type bare names (rather than coded
// identifiers) normally refer to.
func ClassifyMentionType(mention string) string {
	for _, p := range mentionPatterns {
		if p.re.MatchString(mention) {
			return p.entityType
		}
	}
	return "customer"
}

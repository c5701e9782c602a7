package resolver

import "testing"

func TestClassifyMentionType(t *testing.T) {
	cases := map[string]string{
		"INV-4821":   "invoice",
		"inv-12":     "invoice",
		"SO-99":      "sales_order",
		"WO-7":       "work_order",
		"PAY-3001":   "payment",
		"TASK-42":    "task",
		"Kay Media":  "customer",
		"INV4821":    "customer",
	}
	for mention, want := range cases {
		if got := ClassifyMentionType(mention); got != want {
			t.Errorf("ClassifyMentionType(%q) = %q, want %q", mention, got, want)
		}
	}
}

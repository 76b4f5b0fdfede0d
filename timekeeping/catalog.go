package timekeeping

import "fmt"

// Lookup expressions are ordered most specific first; the generic text match comes last.
// The UI is unversioned, so each list carries several spellings of the same control.

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

// lowerText returns an XPath expression for the lower-cased normalized text of the context node.
func lowerText() string {
	return fmt.Sprintf("translate(normalize-space(.), '%s', '%s')", upperAlpha, lowerAlpha)
}

// lowerAttr returns an XPath expression for the lower-cased value of an attribute.
func lowerAttr(attr string) string {
	return fmt.Sprintf("translate(@%s, '%s', '%s')", attr, upperAlpha, lowerAlpha)
}

// textMatch matches elements of tag whose text contains phrase, ignoring case.
// phrase must already be lower case.
func textMatch(tag, phrase string) string {
	return fmt.Sprintf("//%s[contains(%s, '%s')]", tag, lowerText(), phrase)
}

func attrMatch(tag, attr, fragment string) string {
	return fmt.Sprintf("//%s[contains(%s, '%s')]", tag, lowerAttr(attr), fragment)
}

// controlCandidates builds the usual ladder for a clickable control: the styled
// button with a nested label, class, id and input value, then button text,
// anchor text, and finally any role=button element.
func controlCandidates(phrases []string, slug string) []string {
	out := []string{
		nestedLabelMatch(phrases[0]),
		attrMatch("button", "class", slug),
		attrMatch("button", "id", slug),
		attrMatch("input", "value", phrases[0]),
	}
	for _, p := range phrases {
		out = append(out, textMatch("button", p))
	}
	for _, p := range phrases {
		out = append(out, textMatch("a", p))
	}
	out = append(out, fmt.Sprintf("//*[@role='button'][contains(%s, '%s')]", lowerText(), phrases[0]))
	return out
}

// nestedLabelMatch matches the UI's styled button whose label sits in a span.
func nestedLabelMatch(phrase string) string {
	return fmt.Sprintf("//button[contains(@class, 'button_button')][.//span[contains(%s, '%s')]]", lowerText(), phrase)
}

// startsWithMatch matches elements of tag whose text begins with prefix, ignoring case.
func startsWithMatch(tag, prefix string) string {
	return fmt.Sprintf("//%s[starts-with(%s, '%s')]", tag, lowerText(), prefix)
}

var actionCandidates = map[Action][]string{
	ClockIn:    controlCandidates([]string{"clock in"}, "clock-in"),
	ClockOut:   controlCandidates([]string{"clock out"}, "clock-out"),
	StartLunch: controlCandidates([]string{"start lunch", "lunch out", "start meal"}, "lunch-start"),
	EndLunch:   controlCandidates([]string{"end lunch", "lunch in", "end meal"}, "lunch-end"),
	DismissInterstitial: {
		textMatch("button", "skip for now"),
		textMatch("a", "skip for now"),
		startsWithMatch("button", "skip for"),
	},
}

// confirmMarkers are best-effort signals that an action took effect.
var confirmMarkers = map[Action][]string{
	ClockIn: {
		textMatch("div", "clocked in"),
		textMatch("span", "clocked in"),
		attrMatch("div", "class", "success"),
	},
	ClockOut: {
		textMatch("div", "clocked out"),
		textMatch("span", "clocked out"),
		attrMatch("div", "class", "success"),
	},
	StartLunch: {
		textMatch("div", "on lunch"),
		textMatch("span", "meal"),
		attrMatch("div", "class", "success"),
	},
	EndLunch: {
		textMatch("div", "clocked in"),
		attrMatch("div", "class", "success"),
	},
}

var (
	// dashboardMarkers signal that login completed.
	dashboardMarkers = []string{
		"//a[contains(@href, 'TimeEntry')]",
		textMatch("a", "time entry"),
		attrMatch("div", "class", "dashboard"),
		attrMatch("nav", "class", "navigation"),
		textMatch("button", "clock in"),
		textMatch("button", "clock out"),
	}

	timeEntryLinks = []string{
		"//a[contains(@href, 'TimeEntry')]",
		textMatch("a", "time entry"),
		textMatch("button", "time entry"),
		attrMatch("div", "class", "time-entry") + "//a",
		"//nav//a[contains(" + lowerAttr("href") + ", 'time')]",
		textMatch("a", "time"),
	}

	statusCandidates = []string{
		attrMatch("div", "class", "status"),
		attrMatch("span", "class", "clock-status"),
		textMatch("div", "clocked"),
		textMatch("span", "clocked"),
	}

	loginButtons = []string{
		textMatch("button", "login"),
		textMatch("button", "log in"),
		"//button[@type='submit']",
		"//input[@type='submit']",
	}

	loginForm = []string{
		"//input[@id='Username']",
		"//input[@id='CompanyId']",
	}

	rememberUsername = []string{
		"//input[@id='RememberUsername']",
	}
)

// Candidates returns the ordered lookup list for an action's primary control.
// Actions without a control return nil.
func Candidates(a Action) []string {
	return actionCandidates[a]
}

// ConfirmMarkers returns the confirmation lookups for an action, possibly none.
func ConfirmMarkers(a Action) []string {
	return confirmMarkers[a]
}

package plan

import "regexp"

// form pairs one statement template with the builder for its variant.
type form struct {
	kind  Kind
	re    *regexp.Regexp
	build func(text string, m []string) Statement
}

var stepForms = []form{
	{KindGoto, regexp.MustCompile(`^await page\.goto\('([^']+)'\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindGoto, Text: text, URL: m[1]}
	}},
	{KindFill, regexp.MustCompile(`^await page\.fill\('([^']+)',\s*'(.*)'\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindFill, Text: text, Selector: m[1], Value: m[2]}
	}},
	{KindClick, regexp.MustCompile(`^await page\.click\('([^']+)'\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindClick, Text: text, Selector: m[1]}
	}},
	{KindWaitForSelector, regexp.MustCompile(`^await page\.waitForSelector\('([^']+)'\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindWaitForSelector, Text: text, Selector: m[1]}
	}},
	{KindWaitForURL, regexp.MustCompile(`^await page\.waitForURL\('([^']+)'\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindWaitForURL, Text: text, URL: m[1]}
	}},
	{KindWaitForURLPattern, regexp.MustCompile(`^await page\.waitForURL\(/(.+)/\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindWaitForURLPattern, Text: text, Pattern: m[1]}
	}},
}

var assertionForms = []form{
	{KindExpectURL, regexp.MustCompile(`^await expect\(page\)\.toHaveURL\('([^']+)'\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindExpectURL, Text: text, URL: m[1]}
	}},
	{KindExpectURLPattern, regexp.MustCompile(`^await expect\(page\)\.toHaveURL\(/(.+)/\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindExpectURLPattern, Text: text, Pattern: m[1]}
	}},
	{KindExpectVisible, regexp.MustCompile(`^await expect\(page\.locator\('([^']+)'\)\)\.toBeVisible\(\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindExpectVisible, Text: text, Selector: m[1]}
	}},
	{KindExpectContainsText, regexp.MustCompile(`^await expect\(page\.locator\('([^']+)'\)\)\.toContainText\('(.*)'\)$`), func(text string, m []string) Statement {
		return Statement{Kind: KindExpectContainsText, Text: text, Selector: m[1], Value: m[2]}
	}},
}

// malformedDelimiter matches an opening parenthesis followed by a doubled
// slash, the shape left behind by `waitForURL(//x//)`.
var malformedDelimiter = regexp.MustCompile(`\(\s*//`)

func formsFor(section Section) []form {
	if section == SectionAssertions {
		return assertionForms
	}
	return stepForms
}

// parseLine matches a trimmed line against the forms of its section in order.
func parseLine(section Section, text string) (Statement, bool) {
	for _, f := range formsFor(section) {
		if m := f.re.FindStringSubmatch(text); m != nil {
			return f.build(text, m), true
		}
	}
	return Statement{}, false
}

func isNavigation(line string) bool {
	return stepForms[0].re.MatchString(line)
}

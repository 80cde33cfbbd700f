package ingest

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/skeinworks/spindle/errors"
)

// ParseRule extracts one field from an item: a selector scoped to the item
// plus an optional attribute name. An empty Attr takes the trimmed text; an
// empty Selector reads from the item element itself.
type ParseRule struct {
	Field    string
	Selector string
	Attr     string
}

// RuleSet describes how to turn a page into records: ItemSelector picks the
// repeating elements, Fields extract named values from each. Rule sets ship
// as code per source; they are not user-editable.
type RuleSet struct {
	ItemSelector string
	Fields       []ParseRule
}

// Parse applies the rule set to an HTML page and returns one field map per
// matched item. A page with no matching items yields an empty slice, not an
// error; selector drift is the caller's signal to update the rules.
func (r RuleSet) Parse(body []byte) ([]map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML document")
	}

	var items []map[string]string
	doc.Find(r.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		item := make(map[string]string, len(r.Fields))
		for _, rule := range r.Fields {
			target := sel
			if rule.Selector != "" {
				target = sel.Find(rule.Selector).First()
			}
			if rule.Attr != "" {
				item[rule.Field], _ = target.Attr(rule.Attr)
			} else {
				item[rule.Field] = strings.TrimSpace(target.Text())
			}
		}
		items = append(items, item)
	})
	return items, nil
}

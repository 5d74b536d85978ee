package timeparsing

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var nlpParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseNaturalLanguage parses expressions like "yesterday", "last monday", or
// "2 hours ago" relative to now. The whole input must be consumed: a partial
// match ("foo tomorrow bar") is rejected.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	result, err := nlpParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("not a natural language time: %q", s)
	}
	if result.Index != 0 || len(result.Text) != len(s) {
		return time.Time{}, fmt.Errorf("ambiguous time expression: %q", s)
	}
	return result.Time, nil
}

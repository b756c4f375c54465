package prompt

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

const DefaultPageType = "form"

var PageTypes = []Option{
	{Value: "form", Label: "Form page"},
	{Value: "landing", Label: "Landing page"},
	{Value: "confirmation", Label: "Confirmation page"},
	{Value: "question", Label: "Question page"},
	{Value: "details", Label: "Information details page"},
}

var Components = []Option{
	{Value: "header", Label: "Header"},
	{Value: "footer", Label: "Footer"},
	{Value: "breadcrumbs", Label: "Breadcrumbs"},
	{Value: "backLink", Label: "Back link"},
	{Value: "errorSummary", Label: "Error summary"},
	{Value: "buttons", Label: "Buttons"},
	{Value: "input", Label: "Text input"},
	{Value: "radios", Label: "Radio buttons"},
	{Value: "checkbox", Label: "Checkboxes"},
	{Value: "table", Label: "Table"},
}

// DefaultComponents returns a fresh copy of the preselected components.
func DefaultComponents() []string {
	return []string{"header", "footer"}
}

// Label returns the display label for a page type or component, or the
// value itself when it is not in the catalogue.
func Label(value string) string {
	for _, list := range [][]Option{PageTypes, Components} {
		for _, o := range list {
			if o.Value == value {
				return o.Label
			}
		}
	}
	return value
}

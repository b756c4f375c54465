// Package prompt assembles the instruction sent to the model from the
// user's form input and the page's conversation so far.
package prompt

import (
	"strings"
)

const closingDirective = "The HTML should be responsive, accessible, and follow all GOV.UK Design System patterns and principles. " +
	"IMPORTANT: Ensure all elements use proper govuk CSS classes (e.g. govuk-button, govuk-heading-xl, govuk-form-group, etc.). " +
	"Include only the HTML without any explanations or comments."

type Request struct {
	PageType           string
	Description        string
	Components         []string
	CustomRequirements string
	PriorContext       string
	PageName           string
}

// Compose builds the user instruction. Clause order is fixed and the
// description is always included verbatim.
func Compose(r Request) string {
	pageType := strings.TrimSpace(r.PageType)
	if pageType == "" {
		pageType = DefaultPageType
	}

	var b strings.Builder
	b.WriteString("Generate HTML that follows the GOV.UK Design System for ")
	b.WriteString(pageType)
	b.WriteString(" page. ")

	if name := strings.TrimSpace(r.PageName); name != "" {
		b.WriteString(`The page is named "`)
		b.WriteString(name)
		b.WriteString(`". `)
	}

	if strings.TrimSpace(r.PriorContext) != "" {
		b.WriteString("Based on our previous conversation: ")
		b.WriteString(r.PriorContext)
		b.WriteString(". New instructions: ")
		b.WriteString(r.Description)
		b.WriteString(". ")
	} else {
		b.WriteString("The page is for: ")
		b.WriteString(r.Description)
		b.WriteString(". ")
	}

	b.WriteString("Include these components: ")
	b.WriteString(strings.Join(r.Components, ", "))
	b.WriteString(". ")

	if req := strings.TrimSpace(r.CustomRequirements); req != "" {
		b.WriteString("Additional requirements: ")
		b.WriteString(req)
		b.WriteString(". ")
	}

	b.WriteString(closingDirective)
	return b.String()
}

// AppendContext folds a new instruction into the running conversation.
func AppendContext(prev, description string) string {
	if strings.TrimSpace(prev) == "" {
		return description
	}
	return prev + " User requested: " + description
}

// Package login detects login forms on live pages and performs the
// authentication sequence that gates login-required workflow runs.
package login

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// FormSelectors identifies the elements of a detected login form as CSS
// selectors usable by the browser driver.
type FormSelectors struct {
	// Username targets the account identifier input.
	Username string

	// Password targets the password input.
	Password string

	// Submit targets the form's submit control.
	Submit string

	// Tenant targets an optional organization/workspace input.
	Tenant string
}

// usernameNames are input name/id values commonly used for the account
// identifier field, in preference order.
var usernameNames = []string{"username", "email", "login", "user", "account"}

// tenantNames are input name/id values commonly used for tenant selection.
var tenantNames = []string{"tenant", "organization", "org", "workspace", "company"}

// DetectForm analyzes a page's HTML and locates its login form fields.
// It fails when no password input exists: a page without one is not a login
// form.
func DetectForm(pageHTML string) (FormSelectors, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return FormSelectors{}, fmt.Errorf("parsing page html: %w", err)
	}

	var inputs []inputField
	var submit string
	walk(doc, func(n *html.Node) {
		switch n.Data {
		case "input":
			inputs = append(inputs, inputFieldFrom(n))
		case "button":
			if submit == "" && attr(n, "type") != "button" {
				submit = selectorFor("button", n)
			}
		}
	})

	sel := FormSelectors{}
	for _, in := range inputs {
		switch {
		case in.typ == "password" && sel.Password == "":
			sel.Password = in.selector
		case in.typ == "submit" && submit == "":
			submit = in.selector
		}
	}
	if sel.Password == "" {
		return FormSelectors{}, fmt.Errorf("no password field found on page")
	}

	sel.Username = findByNames(inputs, usernameNames)
	if sel.Username == "" {
		// Fall back to the first text-like input preceding the password.
		for _, in := range inputs {
			if in.typ == "password" {
				break
			}
			if in.typ == "" || in.typ == "text" || in.typ == "email" {
				sel.Username = in.selector
				break
			}
		}
	}
	if sel.Username == "" {
		return FormSelectors{}, fmt.Errorf("no username field found on page")
	}

	sel.Tenant = findByNames(inputs, tenantNames)

	sel.Submit = submit
	if sel.Submit == "" {
		sel.Submit = `button[type="submit"], input[type="submit"]`
	}
	return sel, nil
}

// inputField is one <input> with enough attributes to build a selector.
type inputField struct {
	typ      string
	name     string
	id       string
	selector string
}

func inputFieldFrom(n *html.Node) inputField {
	in := inputField{
		typ:  strings.ToLower(attr(n, "type")),
		name: attr(n, "name"),
		id:   attr(n, "id"),
	}
	in.selector = selectorFor("input", n)
	return in
}

// selectorFor builds the most specific stable selector for an element:
// id wins, then name, then tag plus type.
func selectorFor(tag string, n *html.Node) string {
	if id := attr(n, "id"); id != "" {
		return "#" + id
	}
	if name := attr(n, "name"); name != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, name)
	}
	if typ := attr(n, "type"); typ != "" {
		return fmt.Sprintf(`%s[type=%q]`, tag, typ)
	}
	return tag
}

// findByNames returns the selector of the first input whose name or id
// matches one of the candidates, honoring candidate order.
func findByNames(inputs []inputField, candidates []string) string {
	for _, want := range candidates {
		for _, in := range inputs {
			if in.typ == "password" || in.typ == "hidden" {
				continue
			}
			if strings.EqualFold(in.name, want) || strings.EqualFold(in.id, want) {
				return in.selector
			}
		}
	}
	return ""
}

// walk visits every element node in the document.
func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// attr returns the value of an attribute, or empty when absent.
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

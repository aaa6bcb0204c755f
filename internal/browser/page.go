package browser

import (
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Page is the read-only view of a rendered page the extractors work with.
// Selectors are CSS by default; an "xpath=" prefix selects by XPath.
type Page interface {
	Count(selector string) (int, error)
	Text(selector string) (string, error)
	Attr(selector, name string) (string, error)
	Title() (string, error)
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Count(selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) Text(selector string) (string, error) {
	text, err := p.page.Locator(selector).First().TextContent()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *playwrightPage) Attr(selector, name string) (string, error) {
	value, err := p.page.Locator(selector).First().GetAttribute(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

// Package render turns parsed Gherkin content into the text pushed to the
// remote store: ASCII data tables, example-row expansion, description
// templates, markup escaping and the steps XML script.
package render

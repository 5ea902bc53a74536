package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		buffer.WriteString(" ")
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// DocumentText reduces a rendered document to the text a visitor would
// see. script/style/noscript subtrees are dropped so their embedded
// numbers can't masquerade as page content.
func DocumentText(rawHtml string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHtml))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()

	var buffer bytes.Buffer
	for _, node := range doc.Selection.Nodes {
		getTextRecursive(node, &buffer)
	}

	text := removeNonPrintable(buffer.String())
	text = innerWhitespace.ReplaceAllString(text, " ")
	return strings.Trim(text, " \t\n"), nil
}

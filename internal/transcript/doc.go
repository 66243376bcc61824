// Package transcript turns a conversation history into a readable export.
//
// Markdown output groups messages under a heading per day and quotes each
// body. WriteHTML runs the same Markdown through goldmark with raw HTML
// disabled, so message text cannot inject markup.
package transcript

// Package api is the HTTP client for the Lavoro chat REST service.
//
// Every endpoint answers with an envelope:
//
//	{"success": true, "data": ...}
//	{"success": false, "error": "..."}
//
// A non-2xx status or a success:false envelope surfaces as *StatusError.
// Attachments above MaxAttachmentSize are rejected locally with
// *AttachmentTooLargeError before any request is made. Uploads use their own
// timeout (30s by default) while JSON calls use the request timeout (15s).
package api

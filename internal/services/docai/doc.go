// Package docai wraps the chat-completion API used for document
// classification and structured field extraction. The client retries
// transient HTTP failures with exponential backoff, honors Retry-After
// hints, and tolerates the JSON formatting quirks language models produce.
package docai

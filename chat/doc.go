// Package chat holds the conversation surface: durable transcripts stored
// as one JSON document per (user, chat) pair, and the Controller that turns
// an incoming user message into a reply by consulting working memory first
// and falling back to the model with memory tools attached.
package chat

// Package llm defines the provider-agnostic chat-completion capability the
// controller depends on: conversation messages, tool definitions and calls,
// and a Client interface returning text and/or tool invocations.
//
// The memory system treats the LLM as a black box. Concrete providers live
// in subpackages (anthropic for production, llmtest for scripted fakes).
package llm

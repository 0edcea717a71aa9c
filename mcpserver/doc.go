// Package mcpserver exposes a knowledge base as Model Context Protocol tools
// over stdio or streamable HTTP.
package mcpserver

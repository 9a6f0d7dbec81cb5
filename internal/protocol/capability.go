package protocol

import "regexp"

// Name-pattern validation for capability descriptors (§4.2).
var (
	toolNamePattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	promptNamePattern  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// ValidateToolName reports whether name is an acceptable tool identifier.
func ValidateToolName(name string) bool {
	return name != "" && toolNamePattern.MatchString(name)
}

// ValidatePromptName reports whether name is an acceptable prompt
// identifier.
func ValidatePromptName(name string) bool {
	return name != "" && promptNamePattern.MatchString(name)
}

// ValidateResourceURI reports whether uri is a non-empty, control-
// character-free resource identifier.
func ValidateResourceURI(uri string) bool {
	return uri != "" && !controlCharPattern.MatchString(uri)
}

// ServerInfo identifies the running server in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolsCapability advertises tool support and whether the tool list can
// change after initialize.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability advertises resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability advertises prompt support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// LoggingCapability advertises structured log forwarding to the client.
type LoggingCapability struct{}

// SamplingCapability advertises server-initiated LLM sampling requests.
type SamplingCapability struct{}

// Capabilities is the negotiated capability set returned by initialize.
// Each field is a pointer so omission (nil) distinguishes "not offered"
// from a present-but-empty capability object.
type Capabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Logging   *LoggingCapability   `json:"logging,omitempty"`
	Sampling  *SamplingCapability  `json:"sampling,omitempty"`
}

// InitializeResult is the server's response to the initialize method.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    Capabilities `json:"capabilities"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Instructions    string       `json:"instructions,omitempty"`
}

// ClientInfo identifies the connecting client in the initialize request.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the parsed body of the initialize request.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
	Capabilities    Capabilities `json:"capabilities,omitempty"`
}

// ToolDescriptor advertises a single callable tool.
type ToolDescriptor struct {
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	InputSchema  interface{} `json:"inputSchema"`
	OutputSchema interface{} `json:"outputSchema,omitempty"`
}

// ResourceDescriptor advertises a single readable resource.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType,omitempty"`
	Description string `json:"description,omitempty"`
}

// PromptArgument describes one named argument accepted by a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptDescriptor advertises a single retrievable prompt template.
type PromptDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ContentBlock is a single piece of tool/prompt output content. Type is
// typically "text", "image", or "resource"; only the fields relevant to
// Type are populated.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// PromptMessage is one turn returned by prompts/get.
type PromptMessage struct {
	Role    string       `json:"role"`
	Content ContentBlock `json:"content"`
}

// Pagination is the cursor/limit pair accepted by the *.list methods.
// Cursor is opaque to the protocol layer; Limit is bounded 1..1000 by the
// dispatcher (§4.9).
type Pagination struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools      []ToolDescriptor `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// CallToolParams is the parsed body of tools/call.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// CallToolResult is the result of tools/call.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ListResourcesResult is the result of resources/list.
type ListResourcesResult struct {
	Resources  []ResourceDescriptor `json:"resources"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

// ReadResourceParams is the parsed body of resources/read.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContent is a single returned resource body.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResourceResult is the result of resources/read.
type ReadResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ListPromptsResult is the result of prompts/list.
type ListPromptsResult struct {
	Prompts    []PromptDescriptor `json:"prompts"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

// GetPromptParams is the parsed body of prompts/get.
type GetPromptParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// GetPromptResult is the result of prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

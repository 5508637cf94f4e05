package httpmcp

import (
	"github.com/httpmcp/httpmcp-go/mcp"
	"github.com/invopop/jsonschema"
)

// ToolMeta accumulates the descriptive metadata of a tool ahead of
// registration. It is a pure value: every method returns a derived copy, so a
// partially built meta can never leak into the frozen registry.
type ToolMeta struct {
	description string
	params      []paramMeta
	required    []string
	schema      *mcp.ToolInputSchema
}

type paramMeta struct {
	name        string
	paramType   string
	description string
}

// NewToolMeta starts an empty tool description.
func NewToolMeta() ToolMeta {
	return ToolMeta{}
}

// Description sets the human-readable tool description.
func (m ToolMeta) Description(desc string) ToolMeta {
	m.description = desc
	return m
}

// Param declares one argument property with a JSON type and description.
func (m ToolMeta) Param(name, paramType, description string) ToolMeta {
	params := make([]paramMeta, len(m.params), len(m.params)+1)
	copy(params, m.params)
	m.params = append(params, paramMeta{name: name, paramType: paramType, description: description})
	return m
}

// Required marks the named parameters as mandatory.
func (m ToolMeta) Required(names ...string) ToolMeta {
	m.required = append([]string(nil), names...)
	return m
}

// InputSchema replaces the parameter list with an explicit schema. Use
// SchemaFor to derive one from a Go struct.
func (m ToolMeta) InputSchema(schema mcp.ToolInputSchema) ToolMeta {
	m.schema = &schema
	return m
}

// toTool freezes the metadata into a wire descriptor.
func (m ToolMeta) toTool(name string) mcp.Tool {
	if m.schema != nil {
		return mcp.Tool{Name: name, Description: m.description, InputSchema: *m.schema}
	}

	props := make(map[string]mcp.SchemaProperty, len(m.params))
	for _, p := range m.params {
		props[p.name] = mcp.SchemaProperty{Type: p.paramType, Description: p.description}
	}

	return mcp.Tool{
		Name:        name,
		Description: m.description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   append([]string(nil), m.required...),
		},
	}
}

// SchemaFor reflects the Go struct type A into a tool input schema using its
// json tags. Non-struct types produce an empty object schema.
func SchemaFor[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}

	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   append([]string(nil), s.Required...),
	}
}

// toSchemaProperty down-converts a reflected jsonschema node to the
// simplified wire shape, one level of arrays and objects at a time.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
		p.Required = append([]string(nil), s.Required...)
	}
	return p
}

// ResourceMeta accumulates the descriptive metadata of a resource provider.
type ResourceMeta struct {
	name        string
	description string
	mimeType    string
}

// NewResourceMeta starts an empty resource description.
func NewResourceMeta() ResourceMeta {
	return ResourceMeta{}
}

// Name sets the display name.
func (m ResourceMeta) Name(name string) ResourceMeta {
	m.name = name
	return m
}

// Description sets the human-readable description.
func (m ResourceMeta) Description(desc string) ResourceMeta {
	m.description = desc
	return m
}

// MIMEType sets the advertised MIME type.
func (m ResourceMeta) MIMEType(mt string) ResourceMeta {
	m.mimeType = mt
	return m
}

func (m ResourceMeta) toResource(uri string) mcp.Resource {
	return mcp.Resource{
		URI:         uri,
		Name:        m.name,
		Description: m.description,
		MimeType:    m.mimeType,
	}
}

// PromptMeta accumulates the descriptive metadata of a prompt.
type PromptMeta struct {
	description string
	arguments   []mcp.PromptArgument
}

// NewPromptMeta starts an empty prompt description.
func NewPromptMeta() PromptMeta {
	return PromptMeta{}
}

// Description sets the human-readable description.
func (m PromptMeta) Description(desc string) PromptMeta {
	m.description = desc
	return m
}

// Arg declares one prompt argument.
func (m PromptMeta) Arg(name, description string, required bool) PromptMeta {
	args := make([]mcp.PromptArgument, len(m.arguments), len(m.arguments)+1)
	copy(args, m.arguments)
	req := required
	m.arguments = append(args, mcp.PromptArgument{
		Name:        name,
		Description: description,
		Required:    &req,
	})
	return m
}

func (m PromptMeta) toPrompt(name string) mcp.Prompt {
	return mcp.Prompt{
		Name:        name,
		Description: m.description,
		Arguments:   append([]mcp.PromptArgument(nil), m.arguments...),
	}
}

// EndpointMeta describes a custom HTTP endpoint registered alongside the
// protocol endpoint.
type EndpointMeta struct {
	route       string
	method      string
	description string
}

// NewEndpointMeta starts an endpoint description for the given route and
// HTTP method.
func NewEndpointMeta(route, method string) EndpointMeta {
	return EndpointMeta{route: route, method: method}
}

// Description sets the human-readable description.
func (m EndpointMeta) Description(desc string) EndpointMeta {
	m.description = desc
	return m
}

// Route returns the registered route pattern.
func (m EndpointMeta) Route() string { return m.route }

// Method returns the registered HTTP method.
func (m EndpointMeta) Method() string { return m.method }

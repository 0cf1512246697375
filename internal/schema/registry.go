package schema

// Tool names.
const (
	ReadQuery     = "read_query"
	WriteQuery    = "write_query"
	CreateTable   = "create_table"
	ListTables    = "list_tables"
	DescribeTable = "describe_table"
)

// Registry holds the tool definitions. It is populated once by NewRegistry
// and never mutated afterwards.
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
}

// NewRegistry returns the registry of the five built-in tools.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Tool)}
	r.add(&Tool{
		Name:        ReadQuery,
		Description: "Execute a SELECT query on the SQLite database",
		Schema:      object(requiredString("query", "SELECT SQL query to execute")),
	})
	r.add(&Tool{
		Name:        WriteQuery,
		Description: "Execute an INSERT, UPDATE, or DELETE query on the SQLite database",
		Schema:      object(requiredString("query", "SQL query to execute")),
	})
	r.add(&Tool{
		Name:        CreateTable,
		Description: "Create a new table in the SQLite database",
		Schema:      object(requiredString("query", "CREATE TABLE SQL statement")),
	})
	r.add(&Tool{
		Name:        ListTables,
		Description: "List all tables in the SQLite database",
		Schema:      object(),
	})
	r.add(&Tool{
		Name:        DescribeTable,
		Description: "Get the schema information for a specific table",
		Schema:      object(requiredString("table_name", "Name of the table to describe")),
	})
	return r
}

func (r *Registry) add(t *Tool) {
	if _, dup := r.byName[t.Name]; dup {
		panic("schema: duplicate tool " + t.Name)
	}
	r.tools = append(r.tools, t)
	r.byName[t.Name] = t
}

// ListTools returns the tools in declaration order.
func (r *Registry) ListTools() []*Tool {
	out := make([]*Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Lookup resolves a tool by name.
func (r *Registry) Lookup(name string) (*Tool, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return t, nil
}

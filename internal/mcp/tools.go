package mcp

import (
	"context"

	"github.com/hazyhaar/sqlitemcp/internal/schema"
	"github.com/hazyhaar/sqlitemcp/internal/sqlgate"
)

type queryReq struct {
	Query string `json:"query"`
}

type describeTableReq struct {
	TableName string `json:"table_name"`
}

type listTablesReq struct{}

func decodeQuery(args schema.Arguments) any {
	return &queryReq{Query: args.String("query")}
}

func bindTools(gw Gateway, strict bool) map[string]binding {
	return map[string]binding{
		schema.ReadQuery: {
			decode: decodeQuery,
			endpoint: func(ctx context.Context, request any) (any, error) {
				r := request.(*queryReq)
				if err := sqlgate.Gate(schema.ReadQuery, sqlgate.ReadOnly, r.Query, strict); err != nil {
					return nil, err
				}
				return gw.Query(ctx, r.Query)
			},
		},
		schema.WriteQuery: {
			decode: decodeQuery,
			endpoint: func(ctx context.Context, request any) (any, error) {
				r := request.(*queryReq)
				if err := sqlgate.Gate(schema.WriteQuery, sqlgate.NonRead, r.Query, strict); err != nil {
					return nil, err
				}
				return gw.Execute(ctx, r.Query)
			},
		},
		schema.CreateTable: {
			decode: decodeQuery,
			endpoint: func(ctx context.Context, request any) (any, error) {
				r := request.(*queryReq)
				if err := sqlgate.Gate(schema.CreateTable, sqlgate.TableCreation, r.Query, strict); err != nil {
					return nil, err
				}
				if _, err := gw.Execute(ctx, r.Query); err != nil {
					return nil, err
				}
				return message("Table created successfully"), nil
			},
		},
		schema.ListTables: {
			decode: func(schema.Arguments) any { return &listTablesReq{} },
			endpoint: func(ctx context.Context, _ any) (any, error) {
				return gw.ListTables(ctx)
			},
		},
		schema.DescribeTable: {
			decode: func(args schema.Arguments) any {
				return &describeTableReq{TableName: args.String("table_name")}
			},
			endpoint: func(ctx context.Context, request any) (any, error) {
				r := request.(*describeTableReq)
				cols, err := gw.DescribeTable(ctx, r.TableName)
				if err != nil {
					return nil, asValidation(schema.DescribeTable, err)
				}
				return cols, nil
			},
		},
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kalambet/advisorhub/internal/advisor"
	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/portfolio"
)

const portfolioResourceURI = "portfolio://merchants"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *advisor.Service
	Logger  *zap.Logger
	// DefaultAdvisor signs log_contact calls that omit advisor_name.
	DefaultAdvisor string
}

// NewMCPServer creates an MCP server with the advisor tools and the portfolio resource.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := server.NewMCPServer(
		"advisorhub",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("advisorhub: merchant portfolio of a commercial advisor and its append-only contact log."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_merchants",
			mcp.WithDescription("List the merchants in the advisor's portfolio with their sales variance and status."),
		),
		mcpListMerchants(deps),
	)

	s.AddTool(
		mcp.NewTool("merchant_history",
			mcp.WithDescription("Return the contact history of a merchant, most recent first."),
			mcp.WithString("merchant", mcp.Description("Tax id (CUIT), display label or name of the merchant"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default all)")),
		),
		mcpMerchantHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("log_contact",
			mcp.WithDescription("Record an interaction with a merchant in the contact log. Entries cannot be edited or deleted."),
			mcp.WithString("merchant", mcp.Description("Tax id (CUIT), display label or name of the merchant"), mcp.Required()),
			mcp.WithString("channel", mcp.Description("Call, Email, Chat or InPerson"), mcp.Required()),
			mcp.WithString("advisor_name", mcp.Description("Advisor signing the entry")),
			mcp.WithString("priority", mcp.Description("Low, Medium or High (default Low)")),
			mcp.WithString("summary", mcp.Description("What was discussed")),
			mcp.WithString("commitment", mcp.Description("Agreed follow-up")),
			mcp.WithString("date", mcp.Description("Contact date as YYYY-MM-DD (default today)")),
		),
		mcpLogContact(deps),
	)

	s.AddResource(
		mcp.NewResource(
			portfolioResourceURI,
			"Merchant Portfolio",
			mcp.WithResourceDescription("Portfolio merchants with display labels and totals as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePortfolio(deps),
	)

	return s
}

func mcpListMerchants(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		merchants := deps.Service.Merchants()
		views := make([]MerchantView, len(merchants))
		for i, m := range merchants {
			views[i] = newMerchantView(m)
		}
		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal merchants: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpMerchantHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := req.RequireString("merchant")
		if err != nil {
			return mcpError("merchant is required"), nil
		}

		m, entries, err := deps.Service.History(ref)
		if err != nil {
			return mcpServiceError(deps, "history", err), nil
		}
		if limit := req.GetInt("limit", 0); limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}

		b, err := json.Marshal(History{Merchant: newMerchantView(m), Contacts: entries})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLogContact(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := req.RequireString("merchant")
		if err != nil {
			return mcpError("merchant is required"), nil
		}

		in, err := advisor.ParseContact(
			req.GetString("advisor_name", deps.DefaultAdvisor),
			req.GetString("channel", ""),
			req.GetString("priority", ""),
			req.GetString("summary", ""),
			req.GetString("commitment", ""),
			req.GetString("date", ""),
		)
		if err != nil {
			return mcpServiceError(deps, "log_contact", err), nil
		}

		e, err := deps.Service.LogContact(ref, in)
		if err != nil {
			return mcpServiceError(deps, "log_contact", err), nil
		}
		return mcpText(fmt.Sprintf("Logged contact %s with %s on %s", e.ID, e.MerchantName, e.DateString())), nil
	}
}

func mcpResourcePortfolio(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		merchants := deps.Service.Merchants()
		views := make([]MerchantView, len(merchants))
		for i, m := range merchants {
			views[i] = newMerchantView(m)
		}

		b, err := json.Marshal(MerchantList{Merchants: views, Summary: deps.Service.Catalog().Summary()})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal portfolio: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// mcpServiceError turns a domain error into a tool error result. Store
// failures are logged; the other kinds are the caller's input.
func mcpServiceError(deps MCPDeps, tool string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, portfolio.ErrNotFound):
		return mcpError(fmt.Sprintf("unknown merchant: %v", err))
	case errors.Is(err, contactlog.ErrValidation):
		return mcpError(fmt.Sprintf("rejected: %v", err))
	}
	deps.Logger.Error("mcp tool failed", zap.String("tool", tool), zap.Error(err))
	return mcpError(fmt.Sprintf("%s failed: %v", tool, err))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

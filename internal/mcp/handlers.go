package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/casefile/internal/errors"
	"github.com/hpungsan/casefile/internal/filing"
	"github.com/hpungsan/casefile/internal/ops"
	"github.com/hpungsan/casefile/internal/report"
	"github.com/hpungsan/casefile/internal/resolver"
	"github.com/hpungsan/casefile/internal/suggest"
)

const formatMarkdown = "markdown"

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc *ops.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Request types for each tool

// ItemArgs identifies the email a tool acts on.
type ItemArgs struct {
	ItemID         string   `json:"item_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Subject        string   `json:"subject,omitempty"`
	Sender         string   `json:"sender,omitempty"`
	Recipients     []string `json:"recipients,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
}

func (a ItemArgs) context() resolver.CurrentItemContext {
	return resolver.CurrentItemContext{
		ItemID:          a.ItemID,
		ConversationID:  a.ConversationID,
		Subject:         a.Subject,
		SenderAddress:   a.Sender,
		Recipients:      a.Recipients,
		AttachmentNames: a.Attachments,
		CreatedAt:       a.CreatedAt,
	}
}

// ItemRequest represents the arguments of the tools that only take an item.
type ItemRequest struct {
	Item   ItemArgs `json:"item"`
	Format string   `json:"format,omitempty"`
}

// SuggestRequest represents the arguments for filing_suggest.
type SuggestRequest struct {
	Item        ItemArgs         `json:"item"`
	BodyExcerpt string           `json:"body_excerpt,omitempty"`
	Cases       []map[string]any `json:"cases"`
	TopK        int              `json:"top_k,omitempty"`
	ContentOnly bool             `json:"content_only,omitempty"`
	Format      string           `json:"format,omitempty"`
}

// FileRequest represents the arguments for filing_file.
type FileRequest struct {
	Item     ItemArgs `json:"item"`
	CaseID   string   `json:"case_id"`
	CaseName string   `json:"case_name,omitempty"`
	CaseKey  string   `json:"case_key,omitempty"`
}

// IntentRequest represents the arguments for the filing_intent_* tools.
type IntentRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	CaseID         string `json:"case_id,omitempty"`
	AutoFileOnSend bool   `json:"auto_file_on_send,omitempty"`
	BaseCaseID     string `json:"base_case_id,omitempty"`
	BaseDocumentID string `json:"base_document_id,omitempty"`
}

func (r IntentRequest) draft() ops.DraftRef {
	return ops.DraftRef{ConversationID: r.ConversationID, CreatedAt: r.CreatedAt}
}

// DeferredRequest represents the arguments for the deferred confirm and
// discard tools.
type DeferredRequest struct {
	ID string `json:"id"`
}

// ListRequest represents the arguments for filing_deferred_list.
type ListRequest struct {
	Format string `json:"format,omitempty"`
}

// HistoryRequest represents the arguments for history_stats.
type HistoryRequest struct {
	Full bool `json:"full,omitempty"`
}

// Handler implementations

// HandleSuggest handles the filing_suggest tool call.
func (h *Handlers) HandleSuggest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SuggestRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	cases := make([]suggest.Case, 0, len(input.Cases))
	for _, raw := range input.Cases {
		if c, ok := suggest.FromRaw(raw); ok {
			cases = append(cases, c)
		}
	}

	item := input.Item.context()
	result, err := h.svc.Suggest(ctx, ops.SuggestInput{
		Item:        item,
		BodyExcerpt: input.BodyExcerpt,
		Cases:       cases,
		TopK:        input.TopK,
		ContentOnly: input.ContentOnly,
	})
	if err != nil {
		return errorResult(err), nil
	}

	if input.Format == formatMarkdown {
		return mcp.NewToolResultText(report.Suggestions(item.Subject, result.Result)), nil
	}
	return successResult(result)
}

// HandleStatus handles the filing_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ItemRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	item := input.Item.context()
	result, err := h.svc.Status(ctx, item)
	if err != nil {
		return errorResult(err), nil
	}

	if input.Format == formatMarkdown {
		return mcp.NewToolResultText(report.Resolution(item, *result)), nil
	}
	return successResult(result)
}

// HandleFile handles the filing_file tool call.
func (h *Handlers) HandleFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FileRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.File(ctx, ops.FileInput{
		Item:     input.Item.context(),
		CaseID:   input.CaseID,
		CaseName: input.CaseName,
		CaseKey:  input.CaseKey,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleUnfile handles the filing_unfile tool call.
func (h *Handlers) HandleUnfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ItemRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.Unfile(ctx, input.Item.context())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDoNotFile handles the filing_do_not_file tool call.
func (h *Handlers) HandleDoNotFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ItemRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.DoNotFile(ctx, input.Item.context())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAllow handles the filing_allow tool call.
func (h *Handlers) HandleAllow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ItemRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.AllowFiling(ctx, input.Item.context())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleIntentSet handles the filing_intent_set tool call.
func (h *Handlers) HandleIntentSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IntentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.SetIntent(ctx, input.draft(), filing.ComposeIntent{
		CaseID:         input.CaseID,
		AutoFileOnSend: input.AutoFileOnSend,
		BaseCaseID:     input.BaseCaseID,
		BaseDocumentID: input.BaseDocumentID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleIntentGet handles the filing_intent_get tool call.
func (h *Handlers) HandleIntentGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IntentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.GetIntent(ctx, input.draft())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleIntentClear handles the filing_intent_clear tool call.
func (h *Handlers) HandleIntentClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IntentRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.ClearIntent(ctx, input.draft())
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDeferredList handles the filing_deferred_list tool call.
func (h *Handlers) HandleDeferredList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.ListDeferred(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	if input.Format == formatMarkdown {
		return mcp.NewToolResultText(report.Deferred(result.Items)), nil
	}
	return successResult(result)
}

// HandleDeferredConfirm handles the filing_deferred_confirm tool call.
func (h *Handlers) HandleDeferredConfirm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeferredRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.ConfirmDeferred(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDeferredDiscard handles the filing_deferred_discard tool call.
func (h *Handlers) HandleDeferredDiscard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeferredRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	if err := h.svc.DiscardDeferred(ctx, input.ID); err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{"id": input.ID, "discarded": true})
}

// HandleHistoryStats handles the history_stats tool call.
func (h *Handlers) HandleHistoryStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := h.svc.History(ctx, input.Full)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if caseErr, ok := errors.As(err); ok {
		// Wrapped errors keep the wrapper's context in the message.
		msg := caseErr.Message
		if err != error(caseErr) {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    caseErr.Code,
			"message": msg,
			"status":  caseErr.Status,
		}
		if caseErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if caseErr.Details != nil {
			errorObj["details"] = caseErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}

package mcp

import "github.com/mark3labs/mcp-go/mcp"

// itemSchema describes the "item" argument shared by the per-email tools.
var itemSchema = map[string]any{
	"item_id":         map[string]any{"type": "string", "description": "Host item id, when the email has been saved"},
	"conversation_id": map[string]any{"type": "string", "description": "Conversation (thread) id"},
	"subject":         map[string]any{"type": "string", "description": "Email subject"},
	"sender":          map[string]any{"type": "string", "description": "Sender address"},
	"recipients":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"attachments":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"created_at":      map[string]any{"type": "string", "description": "Creation timestamp, used when no id is known"},
}

func withItem() mcp.ToolOption {
	return mcp.WithObject("item",
		mcp.Required(),
		mcp.Description("The email being looked at"),
		mcp.Properties(itemSchema),
	)
}

func withFormat() mcp.ToolOption {
	return mcp.WithString("format",
		mcp.Description("Output format"),
		mcp.Enum("json", "markdown"),
	)
}

func withDraft() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("conversation_id", mcp.Description("Conversation id of the draft, when known")),
		mcp.WithString("created_at", mcp.Description("Draft creation timestamp")),
	}
}

var suggestToolDef = mcp.NewTool("filing_suggest",
	mcp.WithDescription("Rank candidate cases for an email using reference, title, body, attachment and history signals."),
	withItem(),
	mcp.WithString("body_excerpt", mcp.Description("Leading part of the email body")),
	mcp.WithArray("cases",
		mcp.Required(),
		mcp.Description("Candidate cases. Each needs an id; title, reference, client and status are read under common spellings."),
		mcp.Items(map[string]any{"type": "object"}),
	),
	mcp.WithNumber("top_k", mcp.Description("Maximum suggestions to return")),
	mcp.WithBoolean("content_only", mcp.Description("Ignore thread, sender, domain and recency history")),
	withFormat(),
)

var statusToolDef = mcp.NewTool("filing_status",
	mcp.WithDescription("Resolve whether an email is filed, unfiled, deleted remotely or unknown."),
	withItem(),
	withFormat(),
)

var fileToolDef = mcp.NewTool("filing_file",
	mcp.WithDescription("File an email to a case. The duplicate policy decides between a new document, a new version, a block or a deferral."),
	withItem(),
	mcp.WithString("case_id", mcp.Required(), mcp.Description("Target case id")),
	mcp.WithString("case_name", mcp.Description("Display name of the case")),
	mcp.WithString("case_key", mcp.Description("Visible case reference")),
)

var unfileToolDef = mcp.NewTool("filing_unfile",
	mcp.WithDescription("Forget the local filing of an email and remove its Filed label. The remote document is untouched."),
	withItem(),
)

var doNotFileToolDef = mcp.NewTool("filing_do_not_file",
	mcp.WithDescription("Mark an email as not to be filed."),
	withItem(),
)

var allowToolDef = mcp.NewTool("filing_allow",
	mcp.WithDescription("Remove the do-not-file mark from an email."),
	withItem(),
)

var intentSetToolDef = mcp.NewTool("filing_intent_set",
	append(withDraft(),
		mcp.WithDescription("Remember which case a draft should be filed to when sent."),
		mcp.WithString("case_id", mcp.Required(), mcp.Description("Case to file the sent email to")),
		mcp.WithBoolean("auto_file_on_send", mcp.Description("File automatically once sent")),
		mcp.WithString("base_case_id", mcp.Description("Case of the document being replied to")),
		mcp.WithString("base_document_id", mcp.Description("Document being replied to")),
	)...,
)

var intentGetToolDef = mcp.NewTool("filing_intent_get",
	append(withDraft(), mcp.WithDescription("Read the compose intent of a draft."))...,
)

var intentClearToolDef = mcp.NewTool("filing_intent_clear",
	append(withDraft(), mcp.WithDescription("Clear the compose intent of a draft."))...,
)

var deferredListToolDef = mcp.NewTool("filing_deferred_list",
	mcp.WithDescription("List duplicate filings waiting for confirmation, oldest first."),
	withFormat(),
)

var deferredConfirmToolDef = mcp.NewTool("filing_deferred_confirm",
	mcp.WithDescription("Confirm a deferred filing as a new version of the existing document."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Deferred filing id")),
)

var deferredDiscardToolDef = mcp.NewTool("filing_deferred_discard",
	mcp.WithDescription("Drop a deferred filing without filing."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Deferred filing id")),
)

var historyStatsToolDef = mcp.NewTool("history_stats",
	mcp.WithDescription("Summarize the learned filing history."),
	mcp.WithBoolean("full", mcp.Description("Include every stored association")),
)

// Package toolkit assembles the assistant's tool set: inventory search,
// selection resolution, status lookups and the draft lifecycle. Each tool
// is a thin adapter between model-facing JSON and the domain packages.
package toolkit

import (
	"github.com/depotkit/concierge/pkg/disambig"
	"github.com/depotkit/concierge/pkg/draft"
	"github.com/depotkit/concierge/pkg/store"
	"github.com/depotkit/concierge/pkg/tool"
)

// Toolkit wires domain services into callable tools.
type Toolkit struct {
	store   store.Store
	drafts  *draft.Manager
	choices *disambig.Manager
}

func New(st store.Store, drafts *draft.Manager, choices *disambig.Manager) *Toolkit {
	return &Toolkit{store: st, drafts: drafts, choices: choices}
}

// Register adds every tool to the registry. Construction only fails on
// schema reflection bugs, so failures here abort startup.
func (k *Toolkit) Register(reg *tool.Registry) error {
	builders := []func() (tool.Tool, error){
		k.searchItemsTool,
		k.searchSubAccountsTool,
		k.resolveSelectionTool,
		k.itemStatusTool,
		k.requestWillCallTool,
		k.requestRepairQuoteTool,
		k.requestReallocationTool,
		k.requestDisposalTool,
		k.submitDraftTool,
	}
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return err
		}
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func itemResult(it store.Item) map[string]any {
	out := map[string]any{
		"id":             it.ID,
		"code":           it.Code,
		"description":    it.Description,
		"status":         it.Status,
		"sub_account_id": it.SubAccountID,
	}
	if it.ReceivedAt != nil {
		out["received_at"] = it.ReceivedAt.Format("2006-01-02")
	}
	return out
}

func subAccountResult(sa store.SubAccount) map[string]any {
	return map[string]any{
		"id":   sa.ID,
		"code": sa.Code,
		"name": sa.Name,
	}
}

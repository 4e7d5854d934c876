package toolkit

import (
	"context"

	"github.com/depotkit/concierge/pkg/draft"
	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/session"
	"github.com/depotkit/concierge/pkg/store"
	"github.com/depotkit/concierge/pkg/tool"
)

// draftOutcome records the new draft on the session and tells the model
// to put the summary to the user for confirmation.
func draftOutcome(d *store.Draft) *tool.Outcome {
	summary := draft.Summary(d)
	return &tool.Outcome{
		Result: map[string]any{
			"status":   "draft_created",
			"draft_id": d.ID,
			"summary":  summary,
			"message":  "present the summary to the user and call submit_draft only after they explicitly confirm",
		},
		Patch: &session.Patch{SetPendingDraft: &session.DraftRef{
			DraftID: d.ID,
			Kind:    d.Kind,
			Summary: summary,
		}},
	}
}

type willCallArgs struct {
	ItemIDs    []string `json:"item_ids" jsonschema:"required,description=IDs of the items to pick up"`
	PickupDate string   `json:"pickup_date" jsonschema:"required,description=Pickup date in YYYY-MM-DD"`
	Notes      string   `json:"notes,omitempty" jsonschema:"description=Optional handling notes"`
}

func (k *Toolkit) requestWillCallTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name: "request_will_call",
		Description: "Draft a will-call pickup for active items. Nothing ships until " +
			"the user confirms and submit_draft is called.",
	}, func(ctx context.Context, inv tool.Invocation, args willCallArgs) (*tool.Outcome, error) {
		d, err := k.drafts.Create(ctx, inv.Scope, store.DraftKindWillCall, store.DraftPayload{
			ItemIDs:    args.ItemIDs,
			PickupDate: args.PickupDate,
			Notes:      args.Notes,
		})
		if err != nil {
			return nil, err
		}
		return draftOutcome(d), nil
	})
}

type repairQuoteArgs struct {
	ItemIDs           []string `json:"item_ids" jsonschema:"required,description=IDs of the damaged items"`
	DamageDescription string   `json:"damage_description" jsonschema:"required,description=What is damaged and how"`
}

func (k *Toolkit) requestRepairQuoteTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name: "request_repair_quote",
		Description: "Draft a repair quote request for damaged items. Accepts active " +
			"and already-allocated items.",
	}, func(ctx context.Context, inv tool.Invocation, args repairQuoteArgs) (*tool.Outcome, error) {
		d, err := k.drafts.Create(ctx, inv.Scope, store.DraftKindRepairQuote, store.DraftPayload{
			ItemIDs:           args.ItemIDs,
			DamageDescription: args.DamageDescription,
		})
		if err != nil {
			return nil, err
		}
		return draftOutcome(d), nil
	})
}

type reallocationArgs struct {
	ItemIDs            []string `json:"item_ids" jsonschema:"required,description=IDs of the items to move"`
	TargetSubAccountID string   `json:"target_subaccount_id" jsonschema:"required,description=ID of the destination sub-account"`
}

func (k *Toolkit) requestReallocationTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name: "request_reallocation",
		Description: "Draft a move of active items to another sub-account. Resolve the " +
			"target with search_subaccounts first.",
	}, func(ctx context.Context, inv tool.Invocation, args reallocationArgs) (*tool.Outcome, error) {
		d, err := k.drafts.Create(ctx, inv.Scope, store.DraftKindReallocation, store.DraftPayload{
			ItemIDs:            args.ItemIDs,
			TargetSubAccountID: args.TargetSubAccountID,
		})
		if err != nil {
			return nil, err
		}
		return draftOutcome(d), nil
	})
}

type disposalArgs struct {
	ItemIDs []string `json:"item_ids" jsonschema:"required,description=IDs of the items to dispose of"`
	Reason  string   `json:"reason" jsonschema:"required,description=Why the items are being disposed of"`
}

func (k *Toolkit) requestDisposalTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name: "request_disposal",
		Description: "Draft a disposal of active items. Disposal is irreversible once " +
			"submitted, so the user's confirmation is mandatory.",
	}, func(ctx context.Context, inv tool.Invocation, args disposalArgs) (*tool.Outcome, error) {
		d, err := k.drafts.Create(ctx, inv.Scope, store.DraftKindDisposal, store.DraftPayload{
			ItemIDs: args.ItemIDs,
			Reason:  args.Reason,
		})
		if err != nil {
			return nil, err
		}
		return draftOutcome(d), nil
	})
}

type submitDraftArgs struct {
	DraftID string `json:"draft_id,omitempty" jsonschema:"description=Draft to submit; defaults to the session's pending draft"`
}

func (k *Toolkit) submitDraftTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name: "submit_draft",
		Description: "Submit a confirmed draft. Call this only after the user has " +
			"explicitly approved the draft summary.",
	}, func(ctx context.Context, inv tool.Invocation, args submitDraftArgs) (*tool.Outcome, error) {
		draftID := args.DraftID
		if draftID == "" && inv.Session != nil && inv.Session.State.PendingDraft != nil {
			draftID = inv.Session.State.PendingDraft.DraftID
		}
		if draftID == "" {
			return nil, fault.New(fault.State, "no draft is pending confirmation")
		}
		sh, err := k.drafts.Submit(ctx, inv.Scope, draftID)
		if err != nil {
			return nil, err
		}
		return &tool.Outcome{
			Result: map[string]any{
				"status":      "submitted",
				"draft_id":    draftID,
				"shipment_id": sh.ID,
				"kind":        sh.Kind,
			},
			Patch: &session.Patch{ClearPendingDraft: true},
		}, nil
	})
}

package toolkit

import (
	"context"

	"github.com/depotkit/concierge/pkg/resolve"
	"github.com/depotkit/concierge/pkg/session"
	"github.com/depotkit/concierge/pkg/tool"
)

type searchItemsArgs struct {
	Query string `json:"query" jsonschema:"required,description=Free-form item reference like a code or description words"`
}

func (k *Toolkit) searchItemsTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name: "search_items",
		Description: "Find inventory items by code, code fragment or description. " +
			"If several items match, a numbered choice is put to the user; " +
			"wait for resolve_selection before acting on any of them.",
	}, func(ctx context.Context, inv tool.Invocation, args searchItemsArgs) (*tool.Outcome, error) {
		items, err := k.store.ListItems(ctx, inv.Scope)
		if err != nil {
			return nil, err
		}
		entities := make([]resolve.Entity, len(items))
		byID := make(map[string]int, len(items))
		for i, it := range items {
			entities[i] = resolve.Entity{ID: it.ID, Code: it.Code, Description: it.Description}
			byID[it.ID] = i
		}

		matches := resolve.Resolve(args.Query, entities)
		switch len(matches) {
		case 0:
			return &tool.Outcome{Result: map[string]any{
				"status":  "no_match",
				"message": "no items match " + args.Query,
			}}, nil
		case 1:
			it := items[byID[matches[0].Entity.ID]]
			return &tool.Outcome{Result: map[string]any{
				"status": "found",
				"item":   itemResult(it),
			}}, nil
		}

		candidates := make([]session.Candidate, len(matches))
		for i, m := range matches {
			it := items[byID[m.Entity.ID]]
			candidates[i] = session.Candidate{
				ID:          it.ID,
				Kind:        session.CandidateKindItem,
				Code:        it.Code,
				Description: it.Description,
				Status:      it.Status,
			}
		}
		dis, err := k.choices.Begin(args.Query, candidates)
		if err != nil {
			return nil, err
		}
		return &tool.Outcome{
			Result: map[string]any{
				"status":     "ambiguous",
				"message":    "multiple items match; ask the user to pick by number",
				"candidates": candidateResults(dis.Candidates),
			},
			Patch: &session.Patch{SetDisambiguation: dis},
		}, nil
	})
}

type searchSubAccountsArgs struct {
	Query string `json:"query" jsonschema:"required,description=Sub-account code or name fragment"`
}

func (k *Toolkit) searchSubAccountsTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name: "search_subaccounts",
		Description: "Find sub-accounts of the caller's account by code or name. " +
			"Use this to resolve a reallocation target before requesting it.",
	}, func(ctx context.Context, inv tool.Invocation, args searchSubAccountsArgs) (*tool.Outcome, error) {
		subs, err := k.store.ListSubAccounts(ctx, inv.Scope)
		if err != nil {
			return nil, err
		}
		entities := make([]resolve.Entity, len(subs))
		byID := make(map[string]int, len(subs))
		for i, sa := range subs {
			entities[i] = resolve.Entity{ID: sa.ID, Code: sa.Code, Description: sa.Name}
			byID[sa.ID] = i
		}

		matches := resolve.Resolve(args.Query, entities)
		switch len(matches) {
		case 0:
			return &tool.Outcome{Result: map[string]any{
				"status":  "no_match",
				"message": "no sub-accounts match " + args.Query,
			}}, nil
		case 1:
			sa := subs[byID[matches[0].Entity.ID]]
			return &tool.Outcome{Result: map[string]any{
				"status":     "found",
				"subaccount": subAccountResult(sa),
			}}, nil
		}

		candidates := make([]session.Candidate, len(matches))
		for i, m := range matches {
			sa := subs[byID[m.Entity.ID]]
			candidates[i] = session.Candidate{
				ID:          sa.ID,
				Kind:        session.CandidateKindSubAccount,
				Code:        sa.Code,
				Description: sa.Name,
			}
		}
		dis, err := k.choices.Begin(args.Query, candidates)
		if err != nil {
			return nil, err
		}
		return &tool.Outcome{
			Result: map[string]any{
				"status":     "ambiguous",
				"message":    "multiple sub-accounts match; ask the user to pick by number",
				"candidates": candidateResults(dis.Candidates),
			},
			Patch: &session.Patch{SetDisambiguation: dis},
		}, nil
	})
}

type resolveSelectionArgs struct {
	Selections []int `json:"selections,omitempty" jsonschema:"description=1-based numbers the user picked from the presented list"`
	SelectAll  bool  `json:"select_all,omitempty" jsonschema:"description=True when the user wants every presented candidate"`
}

func (k *Toolkit) resolveSelectionTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name: "resolve_selection",
		Description: "Resolve the user's answer to a pending numbered choice. " +
			"Pass the numbers they picked, or select_all when they want all of them.",
	}, func(_ context.Context, inv tool.Invocation, args resolveSelectionArgs) (*tool.Outcome, error) {
		var pending *session.Disambiguation
		if inv.Session != nil {
			pending = inv.Session.State.Disambiguation
		}
		picked, err := k.choices.Resolve(pending, args.Selections, args.SelectAll)
		if err != nil {
			return nil, err
		}
		return &tool.Outcome{
			Result: map[string]any{
				"status":   "resolved",
				"selected": candidateResults(picked),
			},
			Patch: &session.Patch{ClearDisambiguation: true},
		}, nil
	})
}

func candidateResults(cands []session.Candidate) []map[string]any {
	out := make([]map[string]any, len(cands))
	for i, c := range cands {
		entry := map[string]any{
			"ordinal": c.Ordinal,
			"id":      c.ID,
			"kind":    c.Kind,
			"code":    c.Code,
		}
		if c.Description != "" {
			entry["description"] = c.Description
		}
		if c.Status != "" {
			entry["status"] = c.Status
		}
		out[i] = entry
	}
	return out
}

type itemStatusArgs struct {
	ItemIDs []string `json:"item_ids" jsonschema:"required,description=Item IDs to report status for"`
}

func (k *Toolkit) itemStatusTool() (tool.Tool, error) {
	return tool.New(tool.Config{
		Name:        "item_status",
		Description: "Report the current status and receipt date of specific items by ID.",
	}, func(ctx context.Context, inv tool.Invocation, args itemStatusArgs) (*tool.Outcome, error) {
		items, err := k.store.GetItems(ctx, inv.Scope, args.ItemIDs)
		if err != nil {
			return nil, err
		}
		found := make(map[string]bool, len(items))
		results := make([]map[string]any, 0, len(items))
		for _, it := range items {
			found[it.ID] = true
			results = append(results, itemResult(it))
		}
		var missing []string
		for _, id := range args.ItemIDs {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		result := map[string]any{"items": results}
		if len(missing) > 0 {
			result["not_found"] = missing
		}
		return &tool.Outcome{Result: result}, nil
	})
}

package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/config"
	"github.com/clearway/claimflow/vector"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo contracts, claims, and knowledge base entries",
	Long: `Populate the configured stores with a small demo dataset: two users
(one with an active health insurance contract, one without), a pending
claim, and a handful of policy documents, all indexed for retrieval.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		st, err := buildStack(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		return seed(cmd.Context(), st)
	},
}

func seed(ctx context.Context, st *stack) error {
	contracts := []*claim.Contract{
		{
			ID:             uuid.New(),
			UserID:         "USER001",
			ContractNumber: "CNT-2023-H-4412",
			ContractType:   "Health Insurance",
			CoverageAmount: 50000,
			Deductible:     1000,
			Active:         true,
			FullText: "Comprehensive health insurance covering outpatient visits, " +
				"annual physical examinations, prescription medication, and emergency care. " +
				"Annual deductible of 1000. Elective surgery requires pre-authorization.",
			KeyTerms: []string{"outpatient", "annual physical", "deductible 1000", "pre-authorization"},
		},
		{
			ID:             uuid.New(),
			UserID:         "USER002",
			ContractNumber: "CNT-2024-A-0093",
			ContractType:   "Auto Insurance",
			CoverageAmount: 25000,
			Deductible:     500,
			Active:         true,
			FullText: "Auto insurance covering collision damage, theft, and third-party " +
				"liability. Deductible of 500 per incident. Claims must be filed within 30 days.",
			KeyTerms: []string{"collision", "theft", "liability", "30 days"},
		},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range contracts {
		if err := st.stores.Contracts.Save(ctx, c); err != nil {
			return fmt.Errorf("save contract %s: %w", c.ContractNumber, err)
		}
		g.Go(func() error {
			err := st.deps.Retriever.Index(gctx, vector.CollectionContracts, vector.Document{
				ID:       c.ID.String(),
				Text:     c.FullText,
				Metadata: map[string]any{"user_id": c.UserID, "contract_type": c.ContractType},
			})
			if err != nil {
				return fmt.Errorf("index contract %s: %w", c.ContractNumber, err)
			}
			return nil
		})
	}

	entries := []*claim.KnowledgeEntry{
		{
			ID:       uuid.New(),
			Title:    "Pre-authorization policy",
			Content:  "Elective procedures require pre-authorization. Emergency care and routine preventive visits never require pre-authorization.",
			Category: "procedures",
			Active:   true,
		},
		{
			ID:       uuid.New(),
			Title:    "Claim filing deadlines",
			Content:  "Health claims must be filed within 90 days of the date of service. Auto claims must be filed within 30 days of the incident.",
			Category: "deadlines",
			Active:   true,
		},
		{
			ID:       uuid.New(),
			Title:    "Manual review triggers",
			Content:  "Claims exceeding 10000, claims with inconsistent documentation, and claims from contracts less than 30 days old are routed to manual review.",
			Category: "review",
			Active:   true,
		},
	}
	for _, e := range entries {
		if err := st.stores.Knowledge.Save(ctx, e); err != nil {
			return fmt.Errorf("save knowledge entry %q: %w", e.Title, err)
		}
		g.Go(func() error {
			err := st.deps.Retriever.Index(gctx, vector.CollectionKnowledgeBase, vector.Document{
				ID:       e.ID.String(),
				Text:     e.Content,
				Metadata: map[string]any{"title": e.Title, "category": e.Category},
			})
			if err != nil {
				return fmt.Errorf("index knowledge entry %q: %w", e.Title, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	demo := claim.New("CLM-2024-0001", "USER001", "Medical", "/claims/CLM-2024-0001.pdf")
	if err := st.stores.Claims.Create(ctx, demo); err != nil {
		return fmt.Errorf("create demo claim: %w", err)
	}

	fmt.Printf("seeded %d contracts, %d knowledge entries, 1 pending claim (%s)\n",
		len(contracts), len(entries), demo.ClaimNumber)
	return nil
}

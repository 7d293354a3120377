package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"offsider/internal/config"
	"offsider/internal/engine"
	"offsider/internal/repo"
)

// apiEngine resolves the rig query parameter for sessionless API calls.
// Unknown rigs are rejected before Stores.Get can create a store for them.
func (s *Server) apiEngine(rig string) (engine.Engine, error) {
	if rig == "" {
		rig = "default"
	}
	if len(s.rigs) > 0 {
		if _, ok := config.FindRig(s.rigs, rig); !ok {
			return engine.Engine{}, newAPIError(http.StatusNotFound, "not_found", fmt.Sprintf("unknown rig %q", rig), nil)
		}
	}
	eng, err := s.engineFor(rig)
	if err != nil {
		return engine.Engine{}, handleError(err)
	}
	return eng, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDebug(api huma.API, s *Server) {
	type rigQuery struct {
		Rig string `query:"rig" doc:"Rig id, defaults to \"default\""`
	}

	huma.Register(api, huma.Operation{
		OperationID: "debug-settings",
		Method:      http.MethodGet,
		Path:        "/debug/settings",
		Summary:     "Rig settings row",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *rigQuery) (*struct {
		Body settingsResponse `json:"body"`
	}, error) {
		eng, err := s.apiEngine(input.Rig)
		if err != nil {
			return nil, err
		}
		st, err := eng.Repo.GetOrCreateSettings(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body settingsResponse `json:"body"`
		}{Body: settingsResponse{
			Status:              "ok",
			Timezone:            st.Timezone,
			ReminderHorizonDays: st.ReminderHorizonDays,
			HasPINHash:          st.CrewPINHash != nil && *st.CrewPINHash != "",
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "debug-db-check",
		Method:      http.MethodGet,
		Path:        "/debug/db-check",
		Summary:     "Probe core tables",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *rigQuery) (*struct {
		Body dbCheckResponse `json:"body"`
	}, error) {
		eng, err := s.apiEngine(input.Rig)
		if err != nil {
			return nil, err
		}
		out := dbCheckResponse{OK: true}
		probes := []string{
			`SELECT id FROM settings LIMIT 1`,
			`SELECT id FROM stock_items LIMIT 1`,
			`SELECT id FROM bits LIMIT 1`,
			`SELECT id FROM equipment_faults LIMIT 1`,
		}
		for _, q := range probes {
			rows, err := eng.DB.QueryContext(ctx, q)
			if err != nil {
				out = dbCheckResponse{OK: false, Error: err.Error()}
				break
			}
			rows.Close()
		}
		return &struct {
			Body dbCheckResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerAudit(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit entries",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Rig    string `query:"rig"`
		Page   int    `query:"page" minimum:"1"`
		Actor  string `query:"actor"`
		Entity string `query:"entity"`
		Q      string `query:"q" doc:"Substring match on summary"`
	}) (*struct {
		Body paginatedAuditLogs `json:"body"`
	}, error) {
		eng, err := s.apiEngine(input.Rig)
		if err != nil {
			return nil, err
		}
		page := input.Page
		if page < 1 {
			page = 1
		}
		f := repo.AuditFilters{Actor: input.Actor, Entity: input.Entity, Q: input.Q}
		logs, total, err := eng.Repo.ListAuditLogs(ctx, f, page)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedAuditLogs `json:"body"`
		}{Body: paginatedAuditLogs{
			Items: mapAuditLogs(logs),
			Total: total,
			Page:  page,
			Pages: (total + repo.AuditPageSize - 1) / repo.AuditPageSize,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-audit",
		Method:      http.MethodGet,
		Path:        "/audit/{id}",
		Summary:     "Get one audit entry",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID  int64  `path:"id"`
		Rig string `query:"rig"`
	}) (*struct {
		Body AuditLogResponse `json:"body"`
	}, error) {
		eng, err := s.apiEngine(input.Rig)
		if err != nil {
			return nil, err
		}
		a, err := eng.Repo.GetAuditLog(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuditLogResponse `json:"body"`
		}{Body: auditLogResponse(a)}, nil
	})
}

func registerJobs(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List job tasks with computed urgency",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Rig  string `query:"rig"`
		Open bool   `query:"open" doc:"Only open tasks"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		eng, err := s.apiEngine(input.Rig)
		if err != nil {
			return nil, err
		}
		tasks, err := eng.Repo.ListTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Open {
			kept := tasks[:0]
			for _, t := range tasks {
				if !t.IsClosed {
					kept = append(kept, t)
				}
			}
			tasks = kept
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(tasks, s.clock())}, nil
	})
}

func registerStock(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stock",
		Method:      http.MethodGet,
		Path:        "/stock",
		Summary:     "List stock items",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Rig string `query:"rig"`
		Low bool   `query:"low" doc:"Only items below min or buffer"`
	}) (*struct {
		Body []StockItemResponse `json:"body"`
	}, error) {
		eng, err := s.apiEngine(input.Rig)
		if err != nil {
			return nil, err
		}
		list := eng.Repo.ListStockItems
		if input.Low {
			list = eng.Repo.ListLowStockItems
		}
		stock, err := list(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StockItemResponse `json:"body"`
		}{Body: mapStockItems(stock)}, nil
	})
}

package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/spirals/formula-dispatch/internal/domain/dispatching"
	"github.com/spirals/formula-dispatch/internal/domain/reports"
)

// Wire DTOs for dispatching events. Domain event structs keep their occurrence
// time unexported, so each event type has an explicit wire form here.

type routeKeyDTO struct {
	Sensor string `json:"sensor"`
	Target string `json:"target"`
}

func toRouteKeyDTO(k reports.RouteKey) routeKeyDTO {
	return routeKeyDTO{Sensor: k.Sensor, Target: k.Target}
}

func (d routeKeyDTO) toDomain() reports.RouteKey {
	return reports.RouteKey{Sensor: d.Sensor, Target: d.Target}
}

type reportReceivedDTO struct {
	Report reports.Report `json:"report"`
}

type poisonReportDTO struct {
	FormulaID string      `json:"formula_id"`
	RouteKey  routeKeyDTO `json:"route_key"`
	ReportID  int         `json:"report_id"`
	Reason    string      `json:"reason,omitempty"`
}

type probeSentDTO struct {
	FormulaID string      `json:"formula_id"`
	RouteKey  routeKeyDTO `json:"route_key"`
	ProbeID   int         `json:"probe_id"`
}

type formulaBlockedDTO struct {
	FormulaID    string      `json:"formula_id"`
	RouteKey     routeKeyDTO `json:"route_key"`
	LastReportID int         `json:"last_report_id"`
	Status       string      `json:"status"`
}

type formulaEvictedDTO struct {
	FormulaID     string      `json:"formula_id"`
	RouteKey      routeKeyDTO `json:"route_key"`
	ReplacementID string      `json:"replacement_id"`
	Status        string      `json:"status"`
}

func init() {
	RegisterType(dispatching.EventTypeReportReceived,
		func(payload any) ([]byte, error) {
			evt, ok := payload.(dispatching.ReportReceivedEvent)
			if !ok {
				return nil, fmt.Errorf("expected ReportReceivedEvent, got %T", payload)
			}
			return json.Marshal(reportReceivedDTO{Report: evt.Report})
		},
		func(data []byte) (any, error) {
			var dto reportReceivedDTO
			if err := json.Unmarshal(data, &dto); err != nil {
				return nil, err
			}
			return dispatching.NewReportReceivedEvent(dto.Report), nil
		},
	)

	RegisterType(dispatching.EventTypePoisonReport,
		func(payload any) ([]byte, error) {
			evt, ok := payload.(dispatching.PoisonReportEvent)
			if !ok {
				return nil, fmt.Errorf("expected PoisonReportEvent, got %T", payload)
			}
			return json.Marshal(poisonReportDTO{
				FormulaID: evt.FormulaID.String(),
				RouteKey:  toRouteKeyDTO(evt.RouteKey),
				ReportID:  evt.ReportID,
				Reason:    evt.Reason,
			})
		},
		func(data []byte) (any, error) {
			var dto poisonReportDTO
			if err := json.Unmarshal(data, &dto); err != nil {
				return nil, err
			}
			id, err := uuid.Parse(dto.FormulaID)
			if err != nil {
				return nil, fmt.Errorf("invalid formula id: %w", err)
			}
			return dispatching.NewPoisonReportEvent(id, dto.RouteKey.toDomain(), dto.ReportID, dto.Reason), nil
		},
	)

	RegisterType(dispatching.EventTypeProbeSent,
		func(payload any) ([]byte, error) {
			evt, ok := payload.(dispatching.ProbeSentEvent)
			if !ok {
				return nil, fmt.Errorf("expected ProbeSentEvent, got %T", payload)
			}
			return json.Marshal(probeSentDTO{
				FormulaID: evt.FormulaID.String(),
				RouteKey:  toRouteKeyDTO(evt.RouteKey),
				ProbeID:   evt.ProbeID,
			})
		},
		func(data []byte) (any, error) {
			var dto probeSentDTO
			if err := json.Unmarshal(data, &dto); err != nil {
				return nil, err
			}
			id, err := uuid.Parse(dto.FormulaID)
			if err != nil {
				return nil, fmt.Errorf("invalid formula id: %w", err)
			}
			return dispatching.NewProbeSentEvent(id, dto.RouteKey.toDomain(), dto.ProbeID), nil
		},
	)

	RegisterType(dispatching.EventTypeFormulaBlocked,
		func(payload any) ([]byte, error) {
			evt, ok := payload.(dispatching.FormulaBlockedEvent)
			if !ok {
				return nil, fmt.Errorf("expected FormulaBlockedEvent, got %T", payload)
			}
			return json.Marshal(formulaBlockedDTO{
				FormulaID:    evt.FormulaID.String(),
				RouteKey:     toRouteKeyDTO(evt.RouteKey),
				LastReportID: evt.LastReportID,
				Status:       evt.Status.String(),
			})
		},
		func(data []byte) (any, error) {
			var dto formulaBlockedDTO
			if err := json.Unmarshal(data, &dto); err != nil {
				return nil, err
			}
			id, err := uuid.Parse(dto.FormulaID)
			if err != nil {
				return nil, fmt.Errorf("invalid formula id: %w", err)
			}
			evt := dispatching.NewFormulaBlockedEvent(id, dto.RouteKey.toDomain(), dto.LastReportID)
			evt.Status = dispatching.ParseFormulaStatus(dto.Status)
			return evt, nil
		},
	)

	RegisterType(dispatching.EventTypeFormulaEvicted,
		func(payload any) ([]byte, error) {
			evt, ok := payload.(dispatching.FormulaEvictedEvent)
			if !ok {
				return nil, fmt.Errorf("expected FormulaEvictedEvent, got %T", payload)
			}
			return json.Marshal(formulaEvictedDTO{
				FormulaID:     evt.FormulaID.String(),
				RouteKey:      toRouteKeyDTO(evt.RouteKey),
				ReplacementID: evt.ReplacementID.String(),
				Status:        evt.Status.String(),
			})
		},
		func(data []byte) (any, error) {
			var dto formulaEvictedDTO
			if err := json.Unmarshal(data, &dto); err != nil {
				return nil, err
			}
			id, err := uuid.Parse(dto.FormulaID)
			if err != nil {
				return nil, fmt.Errorf("invalid formula id: %w", err)
			}
			replacementID, err := uuid.Parse(dto.ReplacementID)
			if err != nil {
				return nil, fmt.Errorf("invalid replacement id: %w", err)
			}
			evt := dispatching.NewFormulaEvictedEvent(id, dto.RouteKey.toDomain(), replacementID)
			evt.Status = dispatching.ParseFormulaStatus(dto.Status)
			return evt, nil
		},
	)
}

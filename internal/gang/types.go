package gang

import (
	"time"

	"ganger/internal/ledger"
)

type Gang struct {
	ID                string    `json:"id"`
	OwnerUserID       string    `json:"owner_user_id"`
	Name              string    `json:"name"`
	GangType          string    `json:"gang_type"`
	Credits           int64     `json:"credits"`
	Rating            int64     `json:"rating"`
	StashValue        int64     `json:"stash_value"`
	Wealth            int64     `json:"wealth"`
	Reputation        int32     `json:"reputation"`
	Meat              int32     `json:"meat"`
	ExplorationPoints int32     `json:"exploration_points"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (g Gang) State() ledger.State {
	return ledger.State{Credits: g.Credits, Rating: g.Rating, Stash: g.StashValue}
}

type Fighter struct {
	ID          string        `json:"id"`
	GangID      string        `json:"gang_id"`
	Name        string        `json:"name"`
	FighterType string        `json:"fighter_type"`
	Cost        int64         `json:"cost"`
	XP          int32         `json:"xp"`
	Kills       int32         `json:"kill_count"`
	Status      ledger.Status `json:"status"`
	Value       int64         `json:"value"`
	Placement   string        `json:"placement"`
	Equipment   []Equipment   `json:"equipment"`
	Effects     []Effect      `json:"effects"`
	Vehicles    []Vehicle     `json:"vehicles"`
	CreatedAt   time.Time     `json:"created_at"`
}

type Vehicle struct {
	ID          string      `json:"id"`
	GangID      string      `json:"gang_id"`
	FighterID   *string     `json:"fighter_id,omitempty"`
	Name        string      `json:"name"`
	VehicleType string      `json:"vehicle_type"`
	BaseCost    int64       `json:"base_cost"`
	Value       int64       `json:"value"`
	Equipment   []Equipment `json:"equipment"`
	Effects     []Effect    `json:"effects"`
}

type Equipment struct {
	ID           string  `json:"id"`
	GangID       string  `json:"gang_id"`
	FighterID    *string `json:"fighter_id,omitempty"`
	VehicleID    *string `json:"vehicle_id,omitempty"`
	Name         string  `json:"name"`
	PurchaseCost int64   `json:"purchase_cost"`
}

type Effect struct {
	ID              string    `json:"id"`
	FighterID       *string   `json:"fighter_id,omitempty"`
	VehicleID       *string   `json:"vehicle_id,omitempty"`
	EffectType      string    `json:"effect_type"`
	Name            string    `json:"name"`
	XPCost          int32     `json:"xp_cost"`
	KillCost        int32     `json:"kill_cost"`
	CreditsIncrease int64     `json:"credits_increase"`
	CreatedAt       time.Time `json:"created_at"`
}

// GangView is the full roster as rendered by GetGang.
type GangView struct {
	Gang     Gang        `json:"gang"`
	Fighters []Fighter   `json:"fighters"`
	Vehicles []Vehicle   `json:"vehicles"`
	Stash    []Equipment `json:"stash"`
}

type LogEntry struct {
	ID          int64     `json:"id"`
	GangID      string    `json:"gang_id"`
	UserID      string    `json:"user_id"`
	ActionType  string    `json:"action_type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type LedgerEntry struct {
	ID             int64          `json:"id"`
	TxGroupID      string         `json:"tx_group_id"`
	GangID         string         `json:"gang_id"`
	UserID         string         `json:"user_id"`
	Action         string         `json:"action"`
	IdempotencyKey string         `json:"idempotency_key"`
	Delta          ledger.Delta   `json:"delta"`
	Before         ledger.State   `json:"before"`
	After          ledger.State   `json:"after"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Result is returned by every mutating action.
type Result struct {
	GangID      string       `json:"gang_id"`
	EntityID    string       `json:"entity_id,omitempty"`
	Action      string       `json:"action"`
	Delta       ledger.Delta `json:"delta"`
	Before      ledger.State `json:"before"`
	After       ledger.State `json:"after"`
	Description string       `json:"description"`
}

type ReconcileReport struct {
	GangID   string       `json:"gang_id"`
	Stored   ledger.State `json:"stored"`
	Computed ledger.State `json:"computed"`
	Drift    ledger.Delta `json:"drift"`
	Fixed    bool         `json:"fixed"`
}

type ReconcileSummary struct {
	Checked  int               `json:"checked"`
	Drifted  int               `json:"drifted"`
	Fixed    int               `json:"fixed"`
	Failed   int               `json:"failed"`
	Reports  []ReconcileReport `json:"reports,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Page selects entries with id < Before (0 means newest).
type Page struct {
	Limit  int   `json:"limit"`
	Before int64 `json:"before"`
}

// Meta carries the actor and idempotency key of a write.
type Meta struct {
	UserID         string `json:"-"`
	IdempotencyKey string `json:"-"`
}

type CreateGangInput struct {
	Meta
	Name     string `json:"name"`
	GangType string `json:"gang_type"`
	Credits  int64  `json:"credits"`
}

type ResourcesInput struct {
	Meta
	GangID            string `json:"-"`
	Reputation        int32  `json:"reputation"`
	Meat              int32  `json:"meat"`
	ExplorationPoints int32  `json:"exploration_points"`
}

type AdjustCreditsInput struct {
	Meta
	GangID string `json:"-"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type HireFighterInput struct {
	Meta
	GangID      string `json:"-"`
	Name        string `json:"name"`
	FighterType string `json:"fighter_type"`
	Cost        int64  `json:"cost"`
}

type FighterStatusInput struct {
	Meta
	FighterID string `json:"-"`
	Status    string `json:"status"`
}

type FighterCountInput struct {
	Meta
	FighterID string `json:"-"`
	Amount    int32  `json:"amount"`
}

type EffectInput struct {
	Meta
	FighterID       string `json:"-"`
	Name            string `json:"name"`
	XPCost          int32  `json:"xp_cost"`
	KillCost        int32  `json:"kill_cost"`
	CreditsIncrease int64  `json:"credits_increase"`
}

type DeleteEffectInput struct {
	Meta
	EffectID string `json:"-"`
}

type BuyVehicleInput struct {
	Meta
	GangID      string `json:"-"`
	Name        string `json:"name"`
	VehicleType string `json:"vehicle_type"`
	Cost        int64  `json:"cost"`
}

type AssignVehicleInput struct {
	Meta
	VehicleID string  `json:"-"`
	FighterID *string `json:"fighter_id"`
}

type SellInput struct {
	Meta
	ID        string `json:"-"`
	SellValue int64  `json:"sell_value"`
}

type VehicleDamageInput struct {
	Meta
	VehicleID       string `json:"-"`
	Name            string `json:"name"`
	CreditsIncrease int64  `json:"credits_increase"`
}

type RepairInput struct {
	Meta
	VehicleID  string `json:"-"`
	EffectID   string `json:"-"`
	RepairCost int64  `json:"repair_cost"`
}

type BuyEquipmentInput struct {
	Meta
	GangID    string  `json:"-"`
	Name      string  `json:"name"`
	Cost      int64   `json:"cost"`
	FighterID *string `json:"fighter_id"`
	VehicleID *string `json:"vehicle_id"`
}

type MoveEquipmentInput struct {
	Meta
	EquipmentID string  `json:"-"`
	FighterID   *string `json:"fighter_id"`
	VehicleID   *string `json:"vehicle_id"`
}

type ReconcileInput struct {
	Meta
	GangID string `json:"-"`
	Fix    bool   `json:"fix"`
}

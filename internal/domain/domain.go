package domain

type Settings struct {
	ID                  int64   `json:"id"`
	Timezone            string  `json:"timezone"`
	ReminderHorizonDays int     `json:"reminder_horizon_days"`
	CrewPINHash         *string `json:"crew_pin_hash,omitempty"`
}

type StockItem struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	OnRigQty  int     `json:"on_rig_qty"`
	MinQty    int     `json:"min_qty"`
	BufferQty int     `json:"buffer_qty"`
	Unit      string  `json:"unit"`
	Location  *string `json:"location,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type RestockItem struct {
	ID          int64    `json:"id"`
	StockItemID *int64   `json:"stock_item_id,omitempty"`
	Name        string   `json:"name"`
	Qty         int      `json:"qty"`
	Unit        string   `json:"unit"`
	Priority    Priority `json:"priority"`
	IsClosed    bool     `json:"is_closed"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type Shroud struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Condition string `json:"condition" enum:"NEW,GOOD,WORN,EOL"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Bit struct {
	ID                 int64    `json:"id"`
	Serial             string   `json:"serial"`
	Status             string   `json:"status" enum:"NEW,VERY_USED,NEEDS_RESHARPEN,SHARPENED,EOL"`
	SizeMM             *float64 `json:"size_mm,omitempty"`
	LifeMetersExpected *float64 `json:"life_meters_expected,omitempty"`
	LifeMetersUsed     float64  `json:"life_meters_used"`
	ShroudID           *int64   `json:"shroud_id,omitempty"`
	Notes              string   `json:"notes,omitempty"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
}

type Equipment struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type EquipmentFault struct {
	ID            int64    `json:"id"`
	EquipmentID   *int64   `json:"equipment_id,omitempty"`
	EquipmentName *string  `json:"equipment_name,omitempty"`
	Description   string   `json:"description"`
	IsResolved    bool     `json:"is_resolved"`
	Priority      Priority `json:"priority"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
}

type HandoverNote struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Priority  Priority `json:"priority"`
	IsClosed  bool     `json:"is_closed"`
	Author    *string  `json:"author,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type TravelLog struct {
	ID           int64   `json:"id"`
	Person       *string `json:"person,omitempty"`
	FromLocation string  `json:"from_location"`
	ToLocation   string  `json:"to_location"`
	StartedAt    *string `json:"started_at,omitempty" format:"date-time"`
	EndedAt      *string `json:"ended_at,omitempty" format:"date-time"`
	Notes        string  `json:"notes,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type RefuelLog struct {
	ID              int64    `json:"id"`
	FuelType        string   `json:"fuel_type"`
	AmountLitres    float64  `json:"amount_litres"`
	BeforeAfterNote string   `json:"before_after_note,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	TankCapacityL   *float64 `json:"tank_capacity_l,omitempty"`
	TargetPercent   *int     `json:"target_percent,omitempty"`
	EstAddedLitres  *float64 `json:"est_added_litres,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
}

type UsageLog struct {
	ID        int64   `json:"id"`
	ItemName  string  `json:"item_name"`
	Qty       float64 `json:"qty"`
	Unit      string  `json:"unit"`
	Notes     string  `json:"notes,omitempty"`
	AtTime    string  `json:"at_time" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type AuditLog struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Actor     string `json:"actor"`
	Entity    string `json:"entity"`
	EntityID  *int64 `json:"entity_id,omitempty"`
	Action    string `json:"action"`
	Summary   string `json:"summary,omitempty"`
}

// JobTask is the generic job entity. The fuel-watch fields are only
// meaningful when IsFuelWatch is set; see fuelwatch.Evaluate.
type JobTask struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Notes           string    `json:"notes,omitempty"`
	Priority        *Priority `json:"priority,omitempty"`
	IsClosed        bool      `json:"is_closed"`
	IsDone          bool      `json:"is_done"`
	IsFuelWatch     bool      `json:"is_fuel_watch"`
	TankCapacityL   *float64  `json:"tank_capacity_l,omitempty"`
	StartPercent    *int      `json:"start_percent,omitempty"`
	CriticalPercent *int      `json:"critical_percent,omitempty"`
	HourlyUsageLPH  *float64  `json:"hourly_usage_lph,omitempty"`
	StartedAt       *string   `json:"started_at,omitempty" format:"date-time"`
	CreatedAt       string    `json:"created_at" format:"date-time"`
}

// StoredPriority returns the persisted priority, defaulting to medium.
func (t JobTask) StoredPriority() Priority {
	if t.Priority == nil {
		return PriorityMedium
	}
	return *t.Priority
}

type LocationNode struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Kind      *string `json:"kind,omitempty"`
	ParentID  *int64  `json:"parent_id,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type StockLocationLink struct {
	ID             int64  `json:"id"`
	StockItemID    int64  `json:"stock_item_id"`
	LocationNodeID int64  `json:"location_node_id"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

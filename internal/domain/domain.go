package domain

// Role is an institutional actor role in the PPP review process.
type Role string

const (
	RoleAdmin            Role = "Administrateur"
	RoleCoordinator      Role = "Coordonnateur UC-PPP"
	RolePlanMinistry     Role = "Ministère du Plan"
	RoleFinanceMinistry  Role = "Ministère des Finances"
	RoleBudgetMinistry   Role = "Ministère du Budget"
	RoleSpatialPlanning  Role = "Ministère de l'Aménagement du Territoire"
	RoleSectorRegulator  Role = "Régulateur Sectoriel"
	RoleDGCMP            Role = "DGCMP"
	RoleSectoralMinistry Role = "Ministère Sectoriel / AC"
	RolePrivatePartner   Role = "Partenaire Privé"
	RolePublic           Role = "Public"
)

// StageID identifies a review stage, or one of the two terminal
// pseudo-stages StageActive and StageRejected.
type StageID string

const (
	StageSubmitted        StageID = "p1.tutelle"
	StageUCConformity     StageID = "p1.avis_conforme_uc"
	StageUCPrioritization StageID = "p1.priorisation_uc"
	StagePlanValidation   StageID = "p1.validation_plan"
	StageFeasibility      StageID = "p2.faisabilite"
	StageUCPhase2Avis     StageID = "p2.avis_conforme_uc"
	StageDAOProcurement   StageID = "p3.dao_passation"
	StageNegotiation      StageID = "p3.negociation_visa"
	StageFinalApproval    StageID = "p3.approbation"

	// Terminal pseudo-stages; never members of the ordered catalog.
	StageActive   StageID = "actif"
	StageRejected StageID = "rejete"
)

// Phase groups consecutive stages for reporting and filtering. Stage
// membership is structural; display labels are never parsed.
type Phase string

const (
	PhaseIdentification Phase = "identification"
	PhaseStudies        Phase = "etudes"
	PhaseProcurement    Phase = "passation"
)

// Action is the outcome of one review decision.
type Action string

const (
	ActionFavorable        Action = "FAVORABLE"
	ActionWithReservations Action = "RESERVE"
	ActionRejected         Action = "REJET"
)

// Identity is the acting caller as supplied by the authentication
// layer. The workflow core treats it as opaque and already verified.
type Identity struct {
	Role Role   `json:"role"`
	Name string `json:"name"`
}

// Project is a PPP proposal under institutional review.
type Project struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	Description         string  `json:"description,omitempty"`
	Sector              string  `json:"sector,omitempty"`
	Location            string  `json:"location,omitempty"`
	Stage               StageID `json:"stage"`
	Authority           string  `json:"authority"`
	SupervisingMinistry string  `json:"supervising_ministry,omitempty"`
	AuthorityType       string  `json:"authority_type,omitempty"`
	CapexUSD            int64   `json:"capex_usd,omitempty"`
	OpexUSD             int64   `json:"opex_usd,omitempty"`
	DurationYears       int     `json:"duration_years,omitempty"`
	Progress            int     `json:"progress,omitempty"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
	UpdatedAt           string  `json:"updated_at" format:"date-time"`

	// History is append-only; Stage is always reproducible by replaying
	// it from the first catalog stage.
	History []Decision `json:"history,omitempty"`
}

// Decision is one immutable approval-log entry.
type Decision struct {
	TS        string  `json:"ts" format:"date-time"`
	Action    Action  `json:"action" enum:"FAVORABLE,RESERVE,REJET"`
	ActorRole Role    `json:"actor_role"`
	ActorName string  `json:"actor_name"`
	Comment   string  `json:"comment"`
	NewStage  StageID `json:"new_stage"`
}

// Document is file metadata attached to a project dossier. Content
// storage lives elsewhere; only the reference is kept.
type Document struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	URL        string `json:"url,omitempty"`
	UploadedBy string `json:"uploaded_by"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

// UserProfile is a registered platform user.
type UserProfile struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	Role                Role   `json:"role"`
	Department          string `json:"department,omitempty"`
	SupervisingMinistry string `json:"supervising_ministry,omitempty"`
	Status              string `json:"status" enum:"active,inactive,rejected"`
	CreatedAt           string `json:"created_at" format:"date-time"`
}

// Event is one append-only audit-log row.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates non-interactive callers of the HTTP API.
type APIKey struct {
	ID        string `json:"id"`
	ActorName string `json:"actor_name"`
	Role      Role   `json:"role"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

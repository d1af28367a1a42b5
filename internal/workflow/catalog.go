package workflow

import (
	"approline/internal/domain"
)

// Stage is one entry of the institutional review catalog.
type Stage struct {
	ID          domain.StageID `json:"id"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Phase       domain.Phase   `json:"phase"`
	GatingRole  domain.Role    `json:"gating_role"`
}

// catalog is the single authoritative definition of stage order and
// role gating. Every caller (engine, API filters, CLI views) reads
// from this table; it is fixed at compile time.
var catalog = []Stage{
	{
		ID:          domain.StageSubmitted,
		Label:       "Validation Tutelle",
		Description: "Accord du Ministre sectoriel de tutelle",
		Phase:       domain.PhaseIdentification,
		GatingRole:  domain.RoleSectoralMinistry,
	},
	{
		ID:          domain.StageUCConformity,
		Label:       "Avis Conforme UC-PPP",
		Description: "Examen technique de la fiche projet (délai 60j)",
		Phase:       domain.PhaseIdentification,
		GatingRole:  domain.RoleCoordinator,
	},
	{
		ID:          domain.StageUCPrioritization,
		Label:       "Priorisation UC-PPP",
		Description: "Inscription dans la base des projets identifiés",
		Phase:       domain.PhaseIdentification,
		GatingRole:  domain.RoleCoordinator,
	},
	{
		ID:          domain.StagePlanValidation,
		Label:       "Validation Min. Plan",
		Description: "Validation stratégique nationale",
		Phase:       domain.PhaseIdentification,
		GatingRole:  domain.RolePlanMinistry,
	},
	{
		ID:          domain.StageFeasibility,
		Label:       "Études de Faisabilité",
		Description: "Réalisation des études par l'autorité contractante",
		Phase:       domain.PhaseStudies,
		GatingRole:  domain.RoleSectoralMinistry,
	},
	{
		ID:          domain.StageUCPhase2Avis,
		Label:       "Avis Conforme UC (Phase 2)",
		Description: "Consultation multilatérale Finances/Budget/AT (délai 20j)",
		Phase:       domain.PhaseStudies,
		GatingRole:  domain.RoleCoordinator,
	},
	{
		ID:          domain.StageDAOProcurement,
		Label:       "DAO & Passation",
		Description: "ANO DGCMP et mise en concurrence",
		Phase:       domain.PhaseProcurement,
		GatingRole:  domain.RoleDGCMP,
	},
	{
		ID:          domain.StageNegotiation,
		Label:       "Négociation & Visa Final",
		Description: "Visa approbation UC-PPP (délai 20j)",
		Phase:       domain.PhaseProcurement,
		GatingRole:  domain.RoleCoordinator,
	},
	{
		ID:          domain.StageFinalApproval,
		Label:       "Approbation Finale",
		Description: "Dossier d'approbation gouvernementale (délai 20j)",
		Phase:       domain.PhaseProcurement,
		GatingRole:  domain.RoleAdmin,
	},
}

// NotFound is returned by IndexOf for ids outside the ordered catalog,
// including the two terminal pseudo-stages.
const NotFound = -1

// Stages returns a copy of the full ordered catalog.
func Stages() []Stage {
	out := make([]Stage, len(catalog))
	copy(out, catalog)
	return out
}

// Len reports the number of ordered stages.
func Len() int { return len(catalog) }

// IndexOf returns the position of a stage id in the ordered catalog,
// or NotFound for terminal pseudo-stages and unknown ids.
func IndexOf(id domain.StageID) int {
	for i, s := range catalog {
		if s.ID == id {
			return i
		}
	}
	return NotFound
}

// StageAt returns the stage at the given catalog position.
func StageAt(index int) (Stage, error) {
	if index < 0 || index >= len(catalog) {
		return Stage{}, &OutOfRangeError{Index: index, Len: len(catalog)}
	}
	return catalog[index], nil
}

// First returns the entry stage every submitted project starts in.
func First() Stage { return catalog[0] }

// Last returns the final ordered stage before the Active terminal.
func Last() Stage { return catalog[len(catalog)-1] }

// GatingRoleOf returns the role authorized to act while a project sits
// in the given stage. Returns false for terminal pseudo-stages.
func GatingRoleOf(id domain.StageID) (domain.Role, bool) {
	i := IndexOf(id)
	if i == NotFound {
		return "", false
	}
	return catalog[i].GatingRole, true
}

// PhaseOf returns the phase tag of a catalog stage. Terminal
// pseudo-stages belong to no phase.
func PhaseOf(id domain.StageID) (domain.Phase, bool) {
	i := IndexOf(id)
	if i == NotFound {
		return "", false
	}
	return catalog[i].Phase, true
}

// ByPhase returns the ordered stages carrying the given phase tag.
func ByPhase(phase domain.Phase) []Stage {
	var out []Stage
	for _, s := range catalog {
		if s.Phase == phase {
			out = append(out, s)
		}
	}
	return out
}

// IsTerminal reports whether the id is one of the two pseudo-stages.
func IsTerminal(id domain.StageID) bool {
	return id == domain.StageActive || id == domain.StageRejected
}

// LabelOf returns the display label for any stage id, terminals
// included.
func LabelOf(id domain.StageID) string {
	switch id {
	case domain.StageActive:
		return "Phase 4: Exécution / Exploitation"
	case domain.StageRejected:
		return "Rejeté / Abandonné"
	}
	if i := IndexOf(id); i != NotFound {
		return catalog[i].Label
	}
	return string(id)
}

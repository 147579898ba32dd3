package service

import "github.com/noah-isme/tutor-identity-api/internal/models"

// relationMergePlan lists the writes needed to fold a shadow profile's relations into
// an existing profile.
type relationMergePlan struct {
	updates []models.StudentTeacherRelation
	deletes []string
	moved   int
	merged  int
}

// shadowRelationLabel is the name a teacher used for the shadow: its own custom name,
// else the placeholder name. Nil when neither exists.
func shadowRelationLabel(relation models.StudentTeacherRelation, shadow *models.StudentProfile) *string {
	if relation.HasCustomName() {
		label := *relation.CustomName
		return &label
	}
	if name := shadow.TempFullName(); name != "" {
		return &name
	}
	return nil
}

// planRelationMerge computes the relation writes of a merge from one read of both
// profiles' relations.
//
// A teacher already linked to the target keeps that relation: its custom name wins,
// creator flags are OR-ed, its private notes win, and the shadow relation is dropped.
// Any other shadow relation is re-pointed at the target under the shadow label.
func planRelationMerge(shadow *models.StudentProfile, shadowRelations, targetRelations []models.StudentTeacherRelation, targetID string) relationMergePlan {
	byTeacher := make(map[string]models.StudentTeacherRelation, len(targetRelations))
	for _, relation := range targetRelations {
		byTeacher[relation.TeacherID] = relation
	}

	var plan relationMergePlan
	for _, relation := range shadowRelations {
		label := shadowRelationLabel(relation, shadow)

		existing, linked := byTeacher[relation.TeacherID]
		if !linked {
			moved := relation
			moved.StudentID = targetID
			moved.CustomName = label
			plan.updates = append(plan.updates, moved)
			plan.moved++
			continue
		}

		merged := existing
		if !merged.HasCustomName() && label != nil {
			merged.CustomName = label
		}
		merged.IsCreator = existing.IsCreator || relation.IsCreator
		if (merged.PrivateNotes == nil || *merged.PrivateNotes == "") && relation.PrivateNotes != nil {
			notes := *relation.PrivateNotes
			merged.PrivateNotes = &notes
		}
		byTeacher[relation.TeacherID] = merged

		plan.deletes = append(plan.deletes, relation.ID)
		plan.updates = append(plan.updates, merged)
		plan.merged++
	}
	return plan
}

package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-identity-api/internal/models"
	"github.com/noah-isme/tutor-identity-api/internal/repository"
)

var errStoreDown = errors.New("store down")

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// memoryStore is an in-memory identity store. Repository fakes share it and ignore
// the exec argument; transactional behaviour is asserted through sqlmock.
type memoryStore struct {
	users       map[string]*models.User
	teachers    map[string]*models.TeacherProfile
	profiles    map[string]*models.StudentProfile
	relations   map[string]*models.StudentTeacherRelation
	classrooms  map[string]string
	memberships map[string]map[string]bool
	ledger      map[string]*models.ConsumedInvite
	audits      []*models.AuditLog
	fail        map[string]error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:       map[string]*models.User{},
		teachers:    map[string]*models.TeacherProfile{},
		profiles:    map[string]*models.StudentProfile{},
		relations:   map[string]*models.StudentTeacherRelation{},
		classrooms:  map[string]string{},
		memberships: map[string]map[string]bool{},
		ledger:      map[string]*models.ConsumedInvite{},
		fail:        map[string]error{},
	}
}

func (m *memoryStore) failure(op string) error {
	return m.fail[op]
}

func (m *memoryStore) addUser(id, name string, role models.UserRole) *models.User {
	user := &models.User{ID: id, Email: id + "@example.com", FullName: name, Role: role, Active: true}
	m.users[id] = user
	return user
}

func (m *memoryStore) addTeacher(userID, teacherID, name string) *models.TeacherProfile {
	m.addUser(userID, name, models.RoleTeacher)
	teacher := &models.TeacherProfile{ID: teacherID, UserID: userID, DisplayName: name}
	m.teachers[teacherID] = teacher
	return teacher
}

func (m *memoryStore) addShadow(id, first, last, token string, expires time.Time, creatorID string) *models.StudentProfile {
	profile := &models.StudentProfile{
		ID:                 id,
		TempFirstName:      &first,
		TempLastName:       &last,
		InviteToken:        &token,
		InviteTokenExpires: &expires,
		CreatorTeacherID:   &creatorID,
	}
	m.profiles[id] = profile
	return profile
}

func (m *memoryStore) addClaimed(id, userID string) *models.StudentProfile {
	profile := &models.StudentProfile{ID: id, UserID: &userID, IsClaimed: true}
	m.profiles[id] = profile
	return profile
}

func (m *memoryStore) addRelation(id, teacherID, studentID string, isCreator bool, customName *string) *models.StudentTeacherRelation {
	relation := &models.StudentTeacherRelation{
		ID:         id,
		TeacherID:  teacherID,
		StudentID:  studentID,
		Status:     models.RelationStatusActive,
		IsCreator:  isCreator,
		CustomName: customName,
		CreatedAt:  time.Now().Add(time.Duration(len(m.relations)) * time.Second),
	}
	m.relations[id] = relation
	return relation
}

func (m *memoryStore) addMembership(studentID, classroomID, teacherID string) {
	m.classrooms[classroomID] = teacherID
	if m.memberships[studentID] == nil {
		m.memberships[studentID] = map[string]bool{}
	}
	m.memberships[studentID][classroomID] = true
}

func (m *memoryStore) relationsOf(studentID string) []models.StudentTeacherRelation {
	var out []models.StudentTeacherRelation
	for _, relation := range m.relations {
		if relation.StudentID == studentID {
			out = append(out, *relation)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memoryStore) relationFor(teacherID, studentID string) *models.StudentTeacherRelation {
	for _, relation := range m.relations {
		if relation.TeacherID == teacherID && relation.StudentID == studentID {
			return relation
		}
	}
	return nil
}

func (m *memoryStore) auditActions() []string {
	actions := make([]string, 0, len(m.audits))
	for _, entry := range m.audits {
		actions = append(actions, entry.Action)
	}
	return actions
}

type fakeUserRepo struct{ *memoryStore }

func (f fakeUserRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.User, error) {
	if err := f.failure("users.FindByID"); err != nil {
		return nil, err
	}
	user, ok := f.users[id]
	if !ok || !user.Active {
		return nil, sql.ErrNoRows
	}
	cp := *user
	return &cp, nil
}

func (f fakeUserRepo) FindTeacherProfileByUserID(ctx context.Context, exec sqlx.ExtContext, userID string) (*models.TeacherProfile, error) {
	for _, teacher := range f.teachers {
		if teacher.UserID == userID {
			cp := *teacher
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeUserRepo) FindTeacherProfileByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TeacherProfile, error) {
	teacher, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *teacher
	return &cp, nil
}

func (f fakeUserRepo) CreateAuditLog(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error {
	if err := f.failure("users.CreateAuditLog"); err != nil {
		return err
	}
	f.memoryStore.audits = append(f.memoryStore.audits, log)
	return nil
}

type fakeProfileRepo struct{ *memoryStore }

func (f fakeProfileRepo) find(match func(*models.StudentProfile) bool) (*models.StudentProfile, error) {
	for _, profile := range f.profiles {
		if match(profile) {
			cp := *profile
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeProfileRepo) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.StudentProfile, error) {
	return f.find(func(p *models.StudentProfile) bool { return p.ID == id })
}

func (f fakeProfileRepo) FindByInviteToken(ctx context.Context, exec sqlx.ExtContext, token string, forUpdate bool) (*models.StudentProfile, error) {
	if err := f.failure("profiles.FindByInviteToken"); err != nil {
		return nil, err
	}
	return f.find(func(p *models.StudentProfile) bool { return p.InviteToken != nil && *p.InviteToken == token })
}

func (f fakeProfileRepo) FindByUserID(ctx context.Context, exec sqlx.ExtContext, userID string, forUpdate bool) (*models.StudentProfile, error) {
	return f.find(func(p *models.StudentProfile) bool { return p.UserID != nil && *p.UserID == userID })
}

func (f fakeProfileRepo) InviteTokenExists(ctx context.Context, exec sqlx.ExtContext, token string) (bool, error) {
	_, err := f.FindByInviteToken(ctx, exec, token, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (f fakeProfileRepo) Create(ctx context.Context, exec sqlx.ExtContext, profile *models.StudentProfile) error {
	if err := f.failure("profiles.Create"); err != nil {
		return err
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	cp := *profile
	f.profiles[profile.ID] = &cp
	return nil
}

func (f fakeProfileRepo) SetInviteToken(ctx context.Context, exec sqlx.ExtContext, id string, token *string, expires *time.Time) (bool, error) {
	profile, ok := f.profiles[id]
	if !ok || profile.IsClaimed {
		return false, nil
	}
	profile.InviteToken = token
	profile.InviteTokenExpires = expires
	return true, nil
}

func (f fakeProfileRepo) ClaimShadow(ctx context.Context, exec sqlx.ExtContext, params repository.ClaimShadowParams) error {
	profile, ok := f.profiles[params.ProfileID]
	if !ok || profile.IsClaimed || profile.UserID != nil {
		return sql.ErrNoRows
	}
	userID := params.UserID
	profile.UserID = &userID
	profile.IsClaimed = true
	profile.InviteToken = nil
	profile.InviteTokenExpires = nil
	profile.TempFirstName = nil
	profile.TempLastName = nil
	profile.TempPhone = nil
	profile.TempEmail = nil
	profile.TempAvatarKey = nil
	if !params.KeepGrade {
		profile.StudentNo = nil
		profile.GradeLevel = nil
	}
	if !params.KeepParentInfo {
		profile.ParentName = nil
		profile.ParentPhone = nil
		profile.ParentEmail = nil
	}
	return nil
}

func (f fakeProfileRepo) ApplyTeacherFields(ctx context.Context, exec sqlx.ExtContext, id string, update repository.TeacherFieldsUpdate) error {
	profile, ok := f.profiles[id]
	if !ok {
		return sql.ErrNoRows
	}
	coalesce := func(dst **string, v *string) {
		if v != nil {
			cp := *v
			*dst = &cp
		}
	}
	coalesce(&profile.StudentNo, update.StudentNo)
	coalesce(&profile.GradeLevel, update.GradeLevel)
	coalesce(&profile.ParentName, update.ParentName)
	coalesce(&profile.ParentPhone, update.ParentPhone)
	coalesce(&profile.ParentEmail, update.ParentEmail)
	return nil
}

func (f fakeProfileRepo) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	if err := f.failure("profiles.Delete"); err != nil {
		return err
	}
	delete(f.profiles, id)
	for relID, relation := range f.relations {
		if relation.StudentID == id {
			delete(f.relations, relID)
		}
	}
	delete(f.memberships, id)
	return nil
}

type fakeRelationRepo struct{ *memoryStore }

func (f fakeRelationRepo) Create(ctx context.Context, exec sqlx.ExtContext, relation *models.StudentTeacherRelation) error {
	if relation.ID == "" {
		relation.ID = uuid.NewString()
	}
	if f.relationFor(relation.TeacherID, relation.StudentID) != nil {
		return errors.New("duplicate relation")
	}
	cp := *relation
	f.relations[relation.ID] = &cp
	return nil
}

func (f fakeRelationRepo) FindByPair(ctx context.Context, exec sqlx.ExtContext, teacherID, studentID string, forUpdate bool) (*models.StudentTeacherRelation, error) {
	relation := f.relationFor(teacherID, studentID)
	if relation == nil {
		return nil, sql.ErrNoRows
	}
	cp := *relation
	return &cp, nil
}

func (f fakeRelationRepo) ListByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, forUpdate bool) ([]models.StudentTeacherRelation, error) {
	return f.relationsOf(studentID), nil
}

func (f fakeRelationRepo) Update(ctx context.Context, exec sqlx.ExtContext, relation *models.StudentTeacherRelation) error {
	if err := f.failure("relations.Update"); err != nil {
		return err
	}
	if _, ok := f.relations[relation.ID]; !ok {
		return sql.ErrNoRows
	}
	if other := f.relationFor(relation.TeacherID, relation.StudentID); other != nil && other.ID != relation.ID {
		return errors.New("duplicate relation")
	}
	cp := *relation
	f.relations[relation.ID] = &cp
	return nil
}

func (f fakeRelationRepo) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(f.relations, id)
	return nil
}

func (f fakeRelationRepo) ListForTeacher(ctx context.Context, teacherID string, filter models.RelationFilter) ([]models.RosterEntry, int, error) {
	if err := f.failure("relations.ListForTeacher"); err != nil {
		return nil, 0, err
	}
	var entries []models.RosterEntry
	for _, relation := range f.relations {
		if relation.TeacherID != teacherID {
			continue
		}
		if filter.Status != "" && relation.Status != filter.Status {
			continue
		}
		profile := f.profiles[relation.StudentID]
		entry := models.RosterEntry{
			StudentTeacherRelation: *relation,
			IsClaimed:              profile.IsClaimed,
			TempFirstName:          profile.TempFirstName,
			TempLastName:           profile.TempLastName,
		}
		if profile.UserID != nil {
			if user, ok := f.users[*profile.UserID]; ok {
				name := user.FullName
				entry.UserFullName = &name
			}
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(rosterDisplayName(entry)), strings.ToLower(filter.Search)) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, len(entries), nil
}

type fakeClassroomRepo struct{ *memoryStore }

func (f fakeClassroomRepo) AttachOwned(ctx context.Context, exec sqlx.ExtContext, studentID, teacherID string, classroomIDs []string) ([]string, error) {
	var attached []string
	for _, id := range classroomIDs {
		if owner, ok := f.classrooms[id]; ok && owner == teacherID {
			f.addMembership(studentID, id, teacherID)
			attached = append(attached, id)
		}
	}
	return attached, nil
}

func (f fakeClassroomRepo) CopyMemberships(ctx context.Context, exec sqlx.ExtContext, sourceID, targetID string) (int64, error) {
	var copied int64
	for classroomID := range f.memberships[sourceID] {
		if f.memberships[targetID][classroomID] {
			continue
		}
		f.addMembership(targetID, classroomID, f.classrooms[classroomID])
		copied++
	}
	return copied, nil
}

func (f fakeClassroomRepo) DetachAll(ctx context.Context, exec sqlx.ExtContext, studentID string) error {
	delete(f.memberships, studentID)
	return nil
}

func (f fakeClassroomRepo) ListIDsByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error) {
	var ids []string
	for id := range f.memberships[studentID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeLedgerRepo struct{ *memoryStore }

func (f fakeLedgerRepo) Record(ctx context.Context, exec sqlx.ExtContext, entry *models.ConsumedInvite) error {
	if err := f.failure("ledger.Record"); err != nil {
		return err
	}
	if _, ok := f.ledger[entry.TokenHash]; ok {
		return errors.New("duplicate ledger entry")
	}
	cp := *entry
	f.ledger[entry.TokenHash] = &cp
	return nil
}

func (f fakeLedgerRepo) FindByHash(ctx context.Context, exec sqlx.ExtContext, tokenHash string) (*models.ConsumedInvite, error) {
	entry, ok := f.ledger[tokenHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *entry
	return &cp, nil
}

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// newTestInviteService builds an InviteService with a fixed clock and a deterministic
// random source.
func newTestInviteService(store *memoryStore, random []byte) *InviteService {
	svc := NewInviteService(fakeProfileRepo{store}, fakeLedgerRepo{store}, fakeUserRepo{store}, fakeClassroomRepo{store}, nil, nil, InviteConfig{})
	svc.now = func() time.Time { return fixedNow }
	if random != nil {
		svc.random = bytes.NewReader(random)
	}
	return svc
}

func strPtr(v string) *string {
	return &v
}

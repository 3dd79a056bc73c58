// Package redis provides a Redis-backed storage.Storage.
//
// Layout (all keys carry the "campus:" prefix):
//
//	students                  sorted set, member = student id, score = insertion seq
//	students:seq              counter feeding the scores above
//	student:{id}              hash: first_name, last_name, row_version
//	student:{id}:enrolments   hash: course id -> enrolment id
//	courses                   set of course ids
//	course:{id}               hash: code, name, description, credits
//	course:code:{code}        string: course id (uniqueness guard)
//
// The optimistic lock uses WATCH on the student hash plus MULTI/EXEC:
// if anyone touches the hash between our read and our write, EXEC is
// aborted and the call reports a conflict.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aanand-mishra/online-campus/internal/config"
	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/types"
)

var _ storage.Storage = (*Store)(nil)

const (
	keyPrefix       = "campus:"
	studentsKey     = keyPrefix + "students"
	studentsSeqKey  = keyPrefix + "students:seq"
	studentPrefix   = keyPrefix + "student:"
	coursesKey      = keyPrefix + "courses"
	coursePrefix    = keyPrefix + "course:"
	courseCodeIndex = keyPrefix + "course:code:"
)

func studentKey(id string) string           { return studentPrefix + id }
func studentEnrolmentsKey(id string) string { return studentPrefix + id + ":enrolments" }
func courseKey(id string) string            { return coursePrefix + id }
func courseCodeKey(code string) string      { return courseCodeIndex + code }

// maxTxRetries bounds how often Delete and Enrol replay their WATCH
// transaction after another client touched a watched key.
const maxTxRetries = 10

// Store wraps a go-redis client.
type Store struct {
	Client *redis.Client
}

// New connects to cfg.Storage.RedisAddr with short timeouts and checks
// the server answers.
func New(cfg *config.Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Storage.RedisAddr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}
	return &Store{Client: client}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{Client: client}
}

func decodeStudent(id string, fields map[string]string) *types.Student {
	if len(fields) == 0 {
		return nil
	}
	return &types.Student{
		ID:         id,
		FirstName:  fields["first_name"],
		LastName:   fields["last_name"],
		RowVersion: types.RowVersion(fields["row_version"]),
	}
}

func decodeCourse(id string, fields map[string]string) (types.Course, bool) {
	if len(fields) == 0 {
		return types.Course{}, false
	}
	credits, _ := strconv.Atoi(fields["credits"])
	return types.Course{
		ID:          id,
		Code:        fields["code"],
		Name:        fields["name"],
		Description: fields["description"],
		Credits:     credits,
	}, true
}

func (s *Store) FindByID(ctx context.Context, id string) (*types.Student, error) {
	fields, err := s.Client.HGetAll(ctx, studentKey(id)).Result()
	if err != nil {
		return nil, storage.Unavailable("FindByID", err)
	}
	return decodeStudent(id, fields), nil
}

func (s *Store) FindAll(ctx context.Context) ([]types.Student, error) {
	ids, err := s.Client.ZRange(ctx, studentsKey, 0, -1).Result()
	if err != nil {
		return nil, storage.Unavailable("FindAll", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := s.Client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, studentKey(id))
		}
		return nil
	}); err != nil {
		return nil, storage.Unavailable("FindAll: fetch", err)
	}

	students := make([]types.Student, 0, len(ids))
	for i, id := range ids {
		// A student deleted between ZRANGE and HGETALL simply drops out.
		if st := decodeStudent(id, cmds[i].Val()); st != nil {
			students = append(students, *st)
		}
	}
	return students, nil
}

func (s *Store) Insert(ctx context.Context, student types.Student) (types.Student, error) {
	student.ID = storage.NewID()
	student.RowVersion = storage.NewRowVersion()

	seq, err := s.Client.Incr(ctx, studentsSeqKey).Result()
	if err != nil {
		return types.Student{}, storage.Unavailable("Insert: seq", err)
	}

	if _, err := s.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, studentKey(student.ID),
			"first_name", student.FirstName,
			"last_name", student.LastName,
			"row_version", string(student.RowVersion),
		)
		p.ZAdd(ctx, studentsKey, redis.Z{Score: float64(seq), Member: student.ID})
		return nil
	}); err != nil {
		return types.Student{}, storage.Unavailable("Insert", err)
	}
	return student, nil
}

func (s *Store) CompareAndSwapUpdate(ctx context.Context, id string, expected types.RowVersion,
	firstName, lastName string) (storage.SwapResult, error) {
	key := studentKey(id)
	var result storage.SwapResult

	err := s.Client.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		current := decodeStudent(id, fields)
		if current == nil || !current.RowVersion.Equal(expected) {
			result = storage.SwapResult{Current: current}
			return nil
		}

		next := storage.NewRowVersion()
		if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key,
				"first_name", firstName,
				"last_name", lastName,
				"row_version", string(next),
			)
			return nil
		}); err != nil {
			return err
		}
		result = storage.SwapResult{
			Swapped: true,
			Current: &types.Student{ID: id, FirstName: firstName, LastName: lastName, RowVersion: next},
		}
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Someone wrote the hash after our WATCH: that is a lost race,
		// reported like any other version mismatch.
		latest, ferr := s.FindByID(ctx, id)
		if ferr != nil {
			return storage.SwapResult{}, ferr
		}
		return storage.SwapResult{Current: latest}, nil
	}
	if err != nil {
		return storage.SwapResult{}, storage.Unavailable("CompareAndSwapUpdate", err)
	}
	return result, nil
}

// watchRetry runs fn under WATCH on keys, replaying it while EXEC is
// aborted by a concurrent writer. fn must reset any state it reports.
func (s *Store) watchRetry(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.Client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxTxRetries, redis.TxFailedErr)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	key := studentKey(id)
	var found bool

	err := s.watchRetry(ctx, func(tx *redis.Tx) error {
		found = false
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		found = true
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, key, studentEnrolmentsKey(id))
			p.ZRem(ctx, studentsKey, id)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return storage.Unavailable("Delete", err)
	}
	if !found {
		return fmt.Errorf("delete student %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateCourse(ctx context.Context, course types.Course) (types.Course, error) {
	course.ID = storage.NewID()

	ok, err := s.Client.SetNX(ctx, courseCodeKey(course.Code), course.ID, 0).Result()
	if err != nil {
		return types.Course{}, storage.Unavailable("CreateCourse: reserve code", err)
	}
	if !ok {
		return types.Course{}, fmt.Errorf("course code %q: %w", course.Code, storage.ErrDuplicate)
	}

	if _, err := s.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, courseKey(course.ID),
			"code", course.Code,
			"name", course.Name,
			"description", course.Description,
			"credits", strconv.Itoa(course.Credits),
		)
		p.SAdd(ctx, coursesKey, course.ID)
		return nil
	}); err != nil {
		// Release the code so a retry is not blocked by our half-write.
		s.Client.Del(ctx, courseCodeKey(course.Code))
		return types.Course{}, storage.Unavailable("CreateCourse", err)
	}
	return course, nil
}

func (s *Store) ListCourses(ctx context.Context) ([]types.Course, error) {
	ids, err := s.Client.SMembers(ctx, coursesKey).Result()
	if err != nil {
		return nil, storage.Unavailable("ListCourses", err)
	}
	return s.loadCourses(ctx, "ListCourses", ids)
}

func (s *Store) loadCourses(ctx context.Context, op string, ids []string) ([]types.Course, error) {
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := s.Client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, courseKey(id))
		}
		return nil
	}); err != nil {
		return nil, storage.Unavailable(op+": fetch", err)
	}

	courses := make([]types.Course, 0, len(ids))
	for i, id := range ids {
		if c, ok := decodeCourse(id, cmds[i].Val()); ok {
			courses = append(courses, c)
		}
	}
	slices.SortFunc(courses, func(a, b types.Course) int { return strings.Compare(a.Code, b.Code) })
	return courses, nil
}

func (s *Store) Enrol(ctx context.Context, studentID, courseID string) (types.Enrolment, error) {
	sKey := studentKey(studentID)
	eKey := studentEnrolmentsKey(studentID)
	var (
		enrolment types.Enrolment
		outcome   error
	)

	// Watching the student hash means a concurrent Delete aborts us
	// instead of leaving an orphaned enrolment behind. Watching the
	// enrolment hash makes a concurrent enrolment abort us too; the
	// replay then sees it and reports a duplicate.
	err := s.watchRetry(ctx, func(tx *redis.Tx) error {
		enrolment, outcome = types.Enrolment{}, nil
		n, err := tx.Exists(ctx, sKey).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			outcome = fmt.Errorf("student %s: %w", studentID, storage.ErrNotFound)
			return nil
		}
		if n, err = tx.Exists(ctx, courseKey(courseID)).Result(); err != nil {
			return err
		}
		if n == 0 {
			outcome = fmt.Errorf("course %s: %w", courseID, storage.ErrNotFound)
			return nil
		}
		dup, err := tx.HExists(ctx, eKey, courseID).Result()
		if err != nil {
			return err
		}
		if dup {
			outcome = fmt.Errorf("enrolment %s/%s: %w", studentID, courseID, storage.ErrDuplicate)
			return nil
		}

		e := types.Enrolment{ID: storage.NewID(), StudentID: studentID, CourseID: courseID}
		if _, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, eKey, courseID, e.ID)
			return nil
		}); err != nil {
			return err
		}
		enrolment = e
		return nil
	}, sKey, eKey)
	if err != nil {
		return types.Enrolment{}, storage.Unavailable("Enrol", err)
	}
	if outcome != nil {
		return types.Enrolment{}, outcome
	}
	return enrolment, nil
}

func (s *Store) StudentCourses(ctx context.Context, studentID string) ([]types.Course, error) {
	n, err := s.Client.Exists(ctx, studentKey(studentID)).Result()
	if err != nil {
		return nil, storage.Unavailable("StudentCourses: lookup", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("student %s: %w", studentID, storage.ErrNotFound)
	}

	ids, err := s.Client.HKeys(ctx, studentEnrolmentsKey(studentID)).Result()
	if err != nil {
		return nil, storage.Unavailable("StudentCourses", err)
	}
	return s.loadCourses(ctx, "StudentCourses", ids)
}

// Close closes the client's connection pool.
func (s *Store) Close() error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Close()
}

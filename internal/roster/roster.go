package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"geoattend/internal/geo"
)

var (
	ErrUnknownStudent = errors.New("unknown student")
	ErrUnknownClass   = errors.New("unknown class")
	ErrBadCredentials = errors.New("invalid roll number or password")
)

// Student is a roster entry keyed by roll number.
type Student struct {
	RollNumber   string   `json:"roll_number"`
	Name         string   `json:"name"`
	PasswordHash string   `json:"-"`
	Classes      []string `json:"classes"`
	ParentEmail  string   `json:"parent_email,omitempty"`
	MentorEmail  string   `json:"mentor_email,omitempty"`
}

// Phase is where a class sits relative to the current time of day.
type Phase string

const (
	Upcoming Phase = "upcoming"
	Live     Phase = "live"
	Ended    Phase = "ended"
)

// ClassSession is a scheduled class. Location is nil when no coordinate is configured.
type ClassSession struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Room            string     `json:"room"`
	Instructor      string     `json:"instructor"`
	Location        *geo.Point `json:"location,omitempty"`
	Window          Window     `json:"window"`
	ToleranceMeters float64    `json:"tolerance_meters"`
}

// Phase reports whether the class is upcoming, live or ended at now.
func (c ClassSession) Phase(now time.Time) Phase {
	m := MinuteOfDay(now)
	switch {
	case m < c.Window.StartMinute:
		return Upcoming
	case m <= c.Window.EndMinute:
		return Live
	default:
		return Ended
	}
}

// Roster is the static student and class schedule data.
type Roster struct {
	students map[string]Student
	classes  map[string]ClassSession
}

// New builds a roster. Classes referenced by students must exist.
func New(students []Student, classes []ClassSession) (*Roster, error) {
	r := &Roster{
		students: make(map[string]Student, len(students)),
		classes:  make(map[string]ClassSession, len(classes)),
	}
	for _, c := range classes {
		if c.ToleranceMeters <= 0 {
			return nil, fmt.Errorf("roster: class %s: tolerance must be positive", c.ID)
		}
		r.classes[c.ID] = c
	}
	for _, s := range students {
		for _, id := range s.Classes {
			if _, ok := r.classes[id]; !ok {
				return nil, fmt.Errorf("roster: student %s: %w %s", s.RollNumber, ErrUnknownClass, id)
			}
		}
		r.students[s.RollNumber] = s
	}
	return r, nil
}

// Student returns the student with the given roll number.
func (r *Roster) Student(roll string) (Student, error) {
	s, ok := r.students[roll]
	if !ok {
		return Student{}, ErrUnknownStudent
	}
	return s, nil
}

// Class returns the class with the given id.
func (r *Roster) Class(id string) (ClassSession, error) {
	c, ok := r.classes[id]
	if !ok {
		return ClassSession{}, ErrUnknownClass
	}
	return c, nil
}

// ClassesFor returns the student's classes in roster order.
func (r *Roster) ClassesFor(roll string) ([]ClassSession, error) {
	s, ok := r.students[roll]
	if !ok {
		return nil, ErrUnknownStudent
	}
	out := make([]ClassSession, 0, len(s.Classes))
	for _, id := range s.Classes {
		out = append(out, r.classes[id])
	}
	return out, nil
}

// Students returns every roll number, sorted.
func (r *Roster) Students() []string {
	out := make([]string, 0, len(r.students))
	for roll := range r.students {
		out = append(out, roll)
	}
	sort.Strings(out)
	return out
}

// Authenticate checks a roll number and password against the roster.
func (r *Roster) Authenticate(roll, password string) (Student, error) {
	s, ok := r.students[strings.TrimSpace(roll)]
	if !ok {
		return Student{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(password)); err != nil {
		return Student{}, ErrBadCredentials
	}
	return s, nil
}

// HashPassword hashes a plain password for roster storage.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

type fileStudent struct {
	RollNumber  string   `json:"roll_number" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Password    string   `json:"password" validate:"required"`
	Classes     []string `json:"classes" validate:"dive,required"`
	ParentEmail string   `json:"parent_email" validate:"omitempty,email"`
	MentorEmail string   `json:"mentor_email" validate:"omitempty,email"`
}

type fileClass struct {
	ID              string   `json:"id" validate:"required"`
	Name            string   `json:"name" validate:"required"`
	Room            string   `json:"room"`
	Instructor      string   `json:"instructor"`
	Lat             *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng             *float64 `json:"lng" validate:"omitempty,longitude"`
	Time            string   `json:"time" validate:"required"`
	ToleranceMeters float64  `json:"tolerance_meters" validate:"gte=0"`
}

type file struct {
	Students []fileStudent `json:"students" validate:"required,dive"`
	Classes  []fileClass   `json:"classes" validate:"required,dive"`
}

var validate = validator.New()

// LoadFile reads a JSON roster. Plain passwords in the file are hashed on load;
// classes without a tolerance get defaultTolerance.
func LoadFile(path string, defaultTolerance float64) (*Roster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("roster: decode %s: %w", path, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("roster: validate %s: %w", path, err)
	}

	classes := make([]ClassSession, 0, len(f.Classes))
	for _, fc := range f.Classes {
		w, err := ParseWindow(fc.Time)
		if err != nil {
			return nil, fmt.Errorf("roster: class %s: %w", fc.ID, err)
		}
		c := ClassSession{
			ID:              fc.ID,
			Name:            fc.Name,
			Room:            fc.Room,
			Instructor:      fc.Instructor,
			Window:          w,
			ToleranceMeters: fc.ToleranceMeters,
		}
		if c.ToleranceMeters == 0 {
			c.ToleranceMeters = defaultTolerance
		}
		if (fc.Lat == nil) != (fc.Lng == nil) {
			return nil, fmt.Errorf("roster: class %s: lat and lng must be set together", fc.ID)
		}
		if fc.Lat != nil {
			c.Location = &geo.Point{Lat: *fc.Lat, Lng: *fc.Lng}
		}
		classes = append(classes, c)
	}

	students := make([]Student, 0, len(f.Students))
	for _, fs := range f.Students {
		hash, err := HashPassword(fs.Password)
		if err != nil {
			return nil, fmt.Errorf("roster: hash password for %s: %w", fs.RollNumber, err)
		}
		students = append(students, Student{
			RollNumber:   fs.RollNumber,
			Name:         fs.Name,
			PasswordHash: hash,
			Classes:      fs.Classes,
			ParentEmail:  fs.ParentEmail,
			MentorEmail:  fs.MentorEmail,
		})
	}
	return New(students, classes)
}

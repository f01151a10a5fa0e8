package roster

import (
	"time"

	"geoattend/internal/geo"
)

// DemoLocation is the device position reported when no real fix is available.
var DemoLocation = geo.Point{Lat: 40.7128, Lng: -74.0060}

// Demo returns the built-in demonstration roster. CS101 opens at now and runs
// for two hours so that attendance can be taken immediately.
func Demo(now time.Time, tolerance float64) (*Roster, error) {
	start := MinuteOfDay(now)
	end := start + 120
	if end > 24*60-1 {
		end = 24*60 - 1
	}

	classes := []ClassSession{
		{
			ID:              "CS101",
			Name:            "Computer Science Fundamentals",
			Room:            "Computer Lab A",
			Instructor:      "DR.DINESH",
			Location:        &geo.Point{Lat: 13.632451, Lng: 78.482063},
			Window:          Window{StartMinute: start, EndMinute: end},
			ToleranceMeters: tolerance,
		},
		{
			ID:              "MATH201",
			Name:            "Advanced Mathematics",
			Room:            "ROOM 101",
			Instructor:      "DR MANIKANDHAN",
			Location:        &geo.Point{Lat: 40.7130, Lng: -74.0062},
			Window:          Window{StartMinute: 11 * 60, EndMinute: 12 * 60},
			ToleranceMeters: tolerance,
		},
		{
			ID:              "PHY301",
			Name:            "Physics Laboratory",
			Room:            "ROOM 202",
			Instructor:      "MR ABDUL JALEEL",
			Location:        &geo.Point{Lat: 40.7125, Lng: -74.0058},
			Window:          Window{StartMinute: 14 * 60, EndMinute: 15*60 + 30},
			ToleranceMeters: tolerance,
		},
	}

	type seed struct {
		student  Student
		password string
	}
	seeds := []seed{
		{Student{
			RollNumber:  "CS001",
			Name:        "John Doe",
			Classes:     []string{"CS101", "MATH201", "PHY301"},
			ParentEmail: "parent.johndoe@email.com",
			MentorEmail: "mentor.johndoe@email.com",
		}, "pass123"},
		{Student{
			RollNumber:  "CS002",
			Name:        "Jane Smith",
			Classes:     []string{"CS101", "MATH201"},
			ParentEmail: "parent.janesmith@email.com",
			MentorEmail: "mentor.janesmith@email.com",
		}, "pass456"},
	}

	students := make([]Student, 0, len(seeds))
	for _, sd := range seeds {
		hash, err := HashPassword(sd.password)
		if err != nil {
			return nil, err
		}
		sd.student.PasswordHash = hash
		students = append(students, sd.student)
	}
	return New(students, classes)
}

package models

// gradePoints maps letter grades to point values on the 4.3 scale.
var gradePoints = map[string]float64{
	"A+": 4.3,
	"A":  4.0,
	"A-": 3.7,
	"B+": 3.3,
	"B":  3.0,
	"B-": 2.7,
	"C+": 2.3,
	"C":  2.0,
	"C-": 1.7,
	"D+": 1.3,
	"D":  1.0,
	"D-": 0.7,
	"F":  0.0,
}

// GradePoints returns the point value of a letter grade on the 4.3 scale.
// The second return is false for unknown letters.
func GradePoints(letter string) (float64, bool) {
	points, ok := gradePoints[letter]
	return points, ok
}

// GradeMeetsMinimum reports whether the posted letter grade's point value is
// at or above the minimum's. Unknown letters never satisfy the minimum.
func GradeMeetsMinimum(grade, minimum string) bool {
	got, ok := GradePoints(grade)
	if !ok {
		return false
	}
	want, ok := GradePoints(minimum)
	if !ok {
		return false
	}
	return got >= want
}

package factsheet

// canonicalLabels holds the official field names of the fact sheet, indexed
// by field number. Index 0 is unused.
var canonicalLabels = [...]string{
	1:  "Name",
	2:  "eHRMS Code",
	3:  "Father's Name",
	4:  "Employee Type",
	5:  "Date of Birth",
	6:  "PH/DFF/ExSer",
	7:  "Home District",
	8:  "Seniority No.",
	9:  "Cadre",
	10: "Level in Cadre",
	11: "Gender",
	12: "Appointment Date",
	13: "Service Start Date",
	14: "Confirmation Date",
	15: "Spouse eHRMS Code",
	16: "eSalary Code",
	17: "Class",
	18: "Health Status",
	19: "Date of Retirement",
	20: "Salary Office",
	21: "Current Status",
	22: "Posting Department/Directorate",
	23: "Present Posting Details",
	24: "Qualification with Specialization",
	25: "Past Posting Details",
	26: "Professional Training Completed",
	27: "Departmental Enquiry/Proceedings (if any)",
}

// FieldCount is the number of fields on the official fact sheet.
const FieldCount = len(canonicalLabels) - 1

// CanonicalLabel returns the official name of field number n.
func CanonicalLabel(n int) (string, bool) {
	if n < 1 || n > FieldCount {
		return "", false
	}
	return canonicalLabels[n], true
}

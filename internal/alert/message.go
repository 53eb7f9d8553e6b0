package alert

import (
	"fmt"
	"html"

	"permit-enforcement/internal/domain/permit"
)

func subject(a Alert) string {
	return fmt.Sprintf("Parking Violation Detected for License Plate: %s", a.Plate)
}

func reason(a Alert) string {
	if a.Classification == permit.ClassificationUnpermitted {
		return "No permit is on record for this plate."
	}
	return "The permit on record is inactive or expired."
}

func plainText(a Alert) string {
	return fmt.Sprintf("Dear Admin,\n\n"+
		"A parking violation has been detected for the license plate: %s.\n"+
		"%s\n"+
		"Detected at: %s\n"+
		"Please take necessary action.\n\n"+
		"Best regards,\n"+
		"License Plate Monitoring System",
		a.Plate, reason(a), a.DetectedAt.UTC().Format("2006-01-02 15:04:05 MST"))
}

func htmlBody(a Alert) string {
	return fmt.Sprintf(`<html>
	<body>
		<h1>Parking Violation Detected</h1>
		<p>License Plate: <strong>%s</strong></p>
		<p>%s</p>
		<p>Detected at: %s</p>
		<p>Please take necessary action.</p>
		<p>Best regards,</p>
		<p>License Plate Monitoring System</p>
	</body>
</html>`, html.EscapeString(a.Plate), reason(a), a.DetectedAt.UTC().Format("2006-01-02 15:04:05 MST"))
}

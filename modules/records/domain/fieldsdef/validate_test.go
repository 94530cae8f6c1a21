package fieldsdef

import "testing"

func testDefs() Defs {
	return Defs{
		{Key: "name", Label: "Name", Kind: KindText, Required: true, CSVMatch: []string{"name"}},
		{Key: "description", Label: "Description", Kind: KindTextarea, CSVMatch: []string{"description"}},
		{Key: "startDate", Label: "Start date", Kind: KindDate, Required: true, CSVMatch: []string{"start date"}},
		{Key: "deaths", Label: "Deaths", Kind: KindNumber},
		{Key: "confirmed", Label: "Confirmed", Kind: KindBool},
		{Key: "hazardId", Label: "Hazard", Kind: KindUUID},
		{Key: "status", Label: "Status", Kind: KindEnum, Enum: []EnumEntry{{Key: "draft", Label: "Draft"}, {Key: "published", Label: "Published"}}},
		{Key: "currency", Label: "Currency", Kind: KindEnumFlex, Enum: []EnumEntry{{Key: "USD", Label: "USD"}}},
		{Key: "cost", Label: "Cost", Kind: KindMoney},
		{Key: "attachments", Label: "Attachments", Kind: KindOther, PSQLType: "jsonb"},
	}
}

func TestValidateAcceptsFullPayload(t *testing.T) {
	clean, errs := Validate(map[string]any{
		"name":        "Flood 2024",
		"description": "river flooding",
		"startDate":   "2024-03-01",
		"deaths":      float64(3),
		"confirmed":   true,
		"hazardId":    "f41bd013-23cc-41ba-91d2-4e325f785171",
		"status":      "draft",
		"currency":    "CHF",
		"cost":        "100.01",
	}, testDefs(), true)
	if errs != nil {
		t.Fatalf("errs = %v", errs)
	}
	if clean["name"] != "Flood 2024" {
		t.Fatalf("clean = %v", clean)
	}
	if clean["deaths"] != float64(3) {
		t.Fatalf("deaths = %v", clean["deaths"])
	}
}

func TestValidateReportsAllErrorsAtOnce(t *testing.T) {
	_, errs := Validate(map[string]any{
		"name":    "x",
		"deaths":  "three",
		"status":  "bogus",
		"mystery": 1,
	}, testDefs(), true)
	if errs == nil {
		t.Fatal("expected errors")
	}
	if got := errs["deaths"]; len(got) != 1 || got[0] != "expected a number" {
		t.Errorf("deaths = %v", got)
	}
	if got := errs["startDate"]; len(got) != 1 || got[0] != "required field" {
		t.Errorf("startDate = %v", got)
	}
	if got := errs["mystery"]; len(got) != 1 || got[0] != "unknown field" {
		t.Errorf("mystery = %v", got)
	}
	if got := errs["status"]; len(got) != 1 || got[0] != "must be one of: draft, published" {
		t.Errorf("status = %v", got)
	}
}

func TestValidatePartialUpdateSkipsRequiredCheck(t *testing.T) {
	clean, errs := Validate(map[string]any{"description": "updated"}, testDefs(), false)
	if errs != nil {
		t.Fatalf("errs = %v", errs)
	}
	if clean["description"] != "updated" {
		t.Fatalf("clean = %v", clean)
	}
}

func TestValidateNullClearsOptionalField(t *testing.T) {
	clean, errs := Validate(map[string]any{"description": nil}, testDefs(), false)
	if errs != nil {
		t.Fatalf("errs = %v", errs)
	}
	if v, present := clean["description"]; !present || v != nil {
		t.Fatalf("clean = %v", clean)
	}
}

func TestValidateNullRequiredFieldRejected(t *testing.T) {
	_, errs := Validate(map[string]any{"name": nil}, testDefs(), false)
	if got := errs["name"]; len(got) != 1 || got[0] != "required field" {
		t.Fatalf("name = %v", got)
	}
}

func TestValidateDateFormats(t *testing.T) {
	for _, good := range []string{"2024-03-01", "2024-03-01T10:00:00Z"} {
		if _, errs := Validate(map[string]any{"startDate": good}, testDefs(), false); errs != nil {
			t.Errorf("date %q rejected: %v", good, errs)
		}
	}
	for _, bad := range []string{"03/01/2024", "yesterday", "2024-13-01"} {
		if _, errs := Validate(map[string]any{"startDate": bad}, testDefs(), false); errs == nil {
			t.Errorf("date %q accepted", bad)
		}
	}
}

func TestValidateUUID(t *testing.T) {
	if _, errs := Validate(map[string]any{"hazardId": "not-a-uuid"}, testDefs(), false); errs == nil {
		t.Fatal("expected UUID error")
	}
}

func TestValidateEnumFlexAllowsUnlisted(t *testing.T) {
	if _, errs := Validate(map[string]any{"currency": "XOF"}, testDefs(), false); errs != nil {
		t.Fatalf("errs = %v", errs)
	}
}

func TestValidateMoney(t *testing.T) {
	for _, good := range []any{"100", "100.01", "0.5", float64(12)} {
		if _, errs := Validate(map[string]any{"cost": good}, testDefs(), false); errs != nil {
			t.Errorf("money %v rejected: %v", good, errs)
		}
	}
	for _, bad := range []any{"100.123", "-5", "abc", ".5", "1.", float64(-1), true} {
		if _, errs := Validate(map[string]any{"cost": bad}, testDefs(), false); errs == nil {
			t.Errorf("money %v accepted", bad)
		}
	}
}

func TestValidateMoneyNumberNormalized(t *testing.T) {
	clean, errs := Validate(map[string]any{"cost": float64(12)}, testDefs(), false)
	if errs != nil {
		t.Fatalf("errs = %v", errs)
	}
	if clean["cost"] != "12.00" {
		t.Fatalf("cost = %v", clean["cost"])
	}
}

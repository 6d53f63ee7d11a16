package policy

// Built-in profile keys. Establishments reference these through their
// profile key; a policy file may override or extend them.
const (
	KeyDefault  = "default"
	KeyJustino  = "justino"
	KeyPracinha = "pracinha"
	KeyHighline = "highline"
)

// justinoWindows is the week of the Justino family of venues.
var justinoWindows = []WindowRule{
	{Days: []string{"tue", "wed", "thu"}, Start: "18:00", End: "01:00", Label: "noite"},
	{Days: []string{"fri", "sat"}, Start: "18:00", End: "03:30", Label: "noite"},
	{Days: []string{"sun"}, Start: "12:00", End: "21:00", Label: "domingo"},
}

// earlyWaitlistSaturday routes Saturday afternoon bookings to the
// early-waitlist flow.
var earlyWaitlistSaturday = BlockRule{
	Days:  []string{"sat"},
	Start: "15:00",
	End:   "21:00",
	Label: "espera antecipada",
}

// Builtin returns the compiled-in profiles.
func Builtin() []Profile {
	return []Profile{
		{
			Key:  KeyDefault,
			Name: "Sem restrições",
		},
		{
			Key:     KeyJustino,
			Name:    "Seu Justino",
			Windows: justinoWindows,
			SubAreas: []SubArea{
				{Key: "varanda", AreaID: 1, Label: "Varanda", Tables: []string{"101", "102", "103", "104", "105", "106"}, Capacity: 4},
				{Key: "jardim", AreaID: 2, Label: "Jardim", Tables: []string{"151", "152", "153", "154"}, Capacity: 4},
				{Key: "lounge-aquario", AreaID: 3, Label: "Lounge Aquário", Tables: []string{"200", "202"}, Capacity: 8},
				{Key: "lounge-palco", AreaID: 3, Label: "Lounge Palco", Tables: []string{"204", "206"}, Capacity: 8},
				{Key: "lounge-bar", AreaID: 3, Label: "Lounge Bar", Tables: []string{"208", "210"}, Capacity: 6},
			},
			AreaLabels: map[int64]string{
				1: "Área Coberta (Salão)",
				2: "Área Descoberta (Jardim)",
			},
			Blocks: []BlockRule{earlyWaitlistSaturday},
		},
		{
			Key:     KeyPracinha,
			Name:    "Pracinha do Seu Justino",
			Windows: justinoWindows,
			SubAreas: []SubArea{
				{Key: "praca", AreaID: 10, Label: "Praça", Tables: []string{"1", "2", "3", "4", "5", "6", "7", "8"}, Capacity: 4},
				{Key: "coreto", AreaID: 11, Label: "Coreto", Tables: []string{"20", "21", "22"}, Capacity: 10},
			},
			AreaLabels: map[int64]string{
				10: "Área Descoberta (Praça)",
				11: "Área Coberta (Coreto)",
			},
			Turns: []Turn{
				{Name: "primeiro giro", From: "00:00"},
				{Name: "segundo giro", From: "20:00"},
			},
			Blocks: []BlockRule{earlyWaitlistSaturday},
		},
		{
			Key:  KeyHighline,
			Name: "Highline",
			Windows: []WindowRule{
				{Days: []string{"fri"}, Start: "18:00", End: "21:00", Label: "sexta"},
				{Days: []string{"sat"}, Start: "14:00", End: "17:00", Label: "rooftop", Families: []string{"rooftop"}},
				{Days: []string{"sat"}, Start: "14:00", End: "20:00", Label: "deck e bar", Families: []string{"deck", "bar"}},
			},
			SubAreas: []SubArea{
				{Key: "rooftop", AreaID: 20, Label: "Rooftop", Family: "rooftop", Tables: []string{"301", "302", "303", "304", "305", "306"}, Capacity: 6},
				{Key: "deck", AreaID: 21, Label: "Deck", Family: "deck", Tables: []string{"401", "402", "403", "404", "405", "406", "407", "408"}, Capacity: 4},
				{Key: "bar", AreaID: 22, Label: "Bar", Family: "bar", Tables: []string{"501", "502", "503", "504", "505", "506"}, Capacity: 2},
			},
			ConfirmedLockAreas: []int64{20},
		},
	}
}

package perm

// AcessaMunicipio aplica a fronteira de multi-tenancy do portal.
// Nacional e Regional enxergam qualquer município; Municipal e Unidade apenas
// o município do próprio vínculo. Vínculo sem município definido nega.
func AcessaMunicipio(perfil Perfil, municipioVinculo *int, municipioID int) bool {
	switch perfil {
	case PerfilNacional, PerfilRegional:
		return true
	case PerfilMunicipal, PerfilUnidade:
		if municipioVinculo == nil {
			return false
		}
		return *municipioVinculo == municipioID
	default:
		return false
	}
}

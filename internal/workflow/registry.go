package workflow

import "github.com/hyperengineering/rentops/internal/types"

func req(key, label string, kind FieldKind, rule string) Field {
	return Field{Key: key, Label: label, Kind: kind, Required: true, Rule: rule}
}

func opt(key, label string, kind FieldKind, rule string) Field {
	return Field{Key: key, Label: label, Kind: kind, Rule: rule}
}

func when(f Field, field string, equals any) Field {
	f.Required = false
	f.RequiredIf = &Condition{Field: field, Equals: equals}
	return f
}

func enum(key, label string, options ...string) Field {
	return Field{Key: key, Label: label, Kind: FieldEnum, Required: true, Options: options}
}

var registry = []PhaseDef{
	{
		Key:   types.PhaseProphero,
		Title: "Revisión Prophero",
		Sections: []Section{
			{
				Key: "property_data", Title: "Datos del inmueble", Kind: KindForm,
				Fields: []Field{
					enum("property_type", "Tipo de inmueble", "flat", "house", "studio", "duplex", "penthouse", "chalet"),
					req("area_m2", "Superficie (m²)", FieldNumber, "gt=0"),
					req("bedrooms", "Dormitorios", FieldInteger, "gte=0,lte=20"),
					req("bathrooms", "Baños", FieldInteger, "gte=1,lte=10"),
					opt("floor", "Planta", FieldText, "max=16"),
					opt("has_elevator", "Ascensor", FieldBool, ""),
				},
			},
			{
				Key: "owner_data", Title: "Datos del propietario", Kind: KindForm,
				Fields: []Field{
					req("owner_full_name", "Nombre del propietario", FieldText, "max=200"),
					req("owner_email", "Email del propietario", FieldEmail, ""),
					req("owner_phone", "Teléfono del propietario", FieldPhone, ""),
					req("owner_id_number", "DNI/NIE del propietario", FieldText, "min=8,max=16"),
					req("owner_iban", "IBAN", FieldText, "min=15,max=34"),
				},
			},
			{
				Key: "legal_documents", Title: "Documentación legal", Kind: KindForm,
				Fields: []Field{
					req("cadastral_reference", "Referencia catastral", FieldText, "len=20"),
					req("energy_certificate", "Certificado energético", FieldDocument, ""),
					req("habitability_certificate", "Cédula de habitabilidad", FieldDocument, ""),
					req("land_registry_note", "Nota simple", FieldDocument, ""),
				},
			},
			{
				Key: "prophero_review", Title: "Revisión", Kind: KindChecklist,
				Items: []ChecklistItem{
					{Key: "photos_reviewed", Label: "Fotos revisadas"},
					{Key: "price_validated", Label: "Precio validado"},
					{Key: "management_agreement_signed", Label: "Encargo de gestión firmado"},
				},
			},
		},
	},
	{
		Key:   types.PhaseReadyToRent,
		Title: "Listo para Alquilar",
		Sections: []Section{
			{
				Key: "pricing", Title: "Condiciones económicas", Kind: KindForm,
				Fields: []Field{
					req("monthly_rent", "Renta mensual (€)", FieldNumber, "gt=0"),
					req("deposit_months", "Meses de fianza", FieldInteger, "gte=1,lte=6"),
					req("available_from", "Disponible desde", FieldDate, ""),
					opt("community_fees_included", "Gastos de comunidad incluidos", FieldBool, ""),
				},
			},
			{Key: "technical_inspection", Title: "Inspección técnica", Kind: KindInspection},
			{
				Key: "listing_content", Title: "Contenido del anuncio", Kind: KindForm,
				Fields: []Field{
					req("listing_title", "Título", FieldText, "max=120"),
					req("listing_description", "Descripción", FieldText, "min=50,max=5000"),
					req("listing_photos_url", "Carpeta de fotos", FieldURL, ""),
				},
			},
			{
				Key: "keys_handover", Title: "Llaves", Kind: KindChecklist,
				Items: []ChecklistItem{
					{Key: "keys_received", Label: "Llaves recibidas"},
					{Key: "keys_copied", Label: "Copia de llaves realizada"},
				},
			},
		},
	},
	{
		Key:   types.PhasePublished,
		Title: "Publicado",
		Sections: []Section{
			{
				Key: "listing", Title: "Publicación", Kind: KindForm,
				Fields: []Field{
					req("listing_url", "URL del anuncio", FieldURL, ""),
					req("published_at", "Fecha de publicación", FieldDate, ""),
					opt("listing_portals", "Portales", FieldText, "max=500"),
				},
			},
			{
				Key: "tenant_selection", Title: "Selección de inquilino", Kind: KindForm,
				Fields: []Field{
					req("selected_lead_id", "Lead seleccionado", FieldText, "max=64"),
				},
			},
		},
	},
	{
		Key:   types.PhaseTenantAccepted,
		Title: "Inquilino Aceptado",
		Sections: []Section{
			{
				Key: "tenant_data", Title: "Datos del inquilino", Kind: KindForm,
				Fields: []Field{
					req("tenant_full_name", "Nombre del inquilino", FieldText, "max=200"),
					req("tenant_email", "Email del inquilino", FieldEmail, ""),
					req("tenant_phone", "Teléfono del inquilino", FieldPhone, ""),
					req("tenant_id_number", "DNI/NIE del inquilino", FieldText, "min=8,max=16"),
				},
			},
			{
				Key: "solvency", Title: "Solvencia", Kind: KindForm,
				Fields: []Field{
					enum("employment_status", "Situación laboral",
						"employed", "self_employed", "civil_servant", "student", "retired", "unemployed"),
					req("monthly_income", "Ingresos mensuales (€)", FieldNumber, "gte=0"),
					opt("has_guarantor", "Tiene avalista", FieldBool, ""),
					when(req("guarantor_full_name", "Nombre del avalista", FieldText, "max=200"), "has_guarantor", true),
					when(req("guarantor_document", "Documentación del avalista", FieldDocument, ""), "has_guarantor", true),
				},
			},
			{
				Key: "tenant_documents", Title: "Documentación del inquilino", Kind: KindForm,
				Fields: []Field{
					req("tenant_id_document", "DNI/NIE", FieldDocument, ""),
					req("payslips", "Nóminas", FieldDocument, ""),
					opt("employment_contract", "Contrato laboral", FieldDocument, ""),
				},
			},
		},
	},
	{
		Key:   types.PhasePendingProcedures,
		Title: "Pendiente de Trámites",
		Sections: []Section{
			{
				Key: "contract", Title: "Contrato", Kind: KindForm,
				Fields: []Field{
					req("contract_start_date", "Inicio del contrato", FieldDate, ""),
					req("contract_end_date", "Fin del contrato", FieldDate, ""),
					req("contract_signed_date", "Fecha de firma", FieldDate, ""),
					req("contract_document", "Contrato firmado", FieldDocument, ""),
				},
			},
			{
				Key: "deposit", Title: "Fianza", Kind: KindForm,
				Fields: []Field{
					req("deposit_amount", "Importe de la fianza (€)", FieldNumber, "gt=0"),
					req("deposit_paid", "Fianza cobrada", FieldBool, ""),
					req("deposit_lodged", "Fianza depositada en el organismo", FieldBool, ""),
					req("deposit_receipt", "Justificante de la fianza", FieldDocument, ""),
				},
			},
			{
				Key: "utilities", Title: "Suministros", Kind: KindChecklist,
				Items: []ChecklistItem{
					{Key: "electricity_transferred", Label: "Cambio de titular de luz"},
					{Key: "water_transferred", Label: "Cambio de titular de agua"},
					{Key: "internet_informed", Label: "Internet informado"},
				},
			},
			{
				Key: "insurance", Title: "Seguros", Kind: KindForm, Optional: true,
				Fields: []Field{
					req("home_insurance_policy_number", "Póliza de hogar", FieldText, "max=64"),
					opt("rent_guarantee_policy_number", "Seguro de impago", FieldText, "max=64"),
				},
			},
		},
	},
	{
		Key:   types.PhaseRented,
		Title: "Alquilado",
		Sections: []Section{
			{
				Key: "move_in", Title: "Entrada", Kind: KindForm,
				Fields: []Field{
					req("move_in_date", "Fecha de entrada", FieldDate, ""),
					req("keys_delivered", "Llaves entregadas", FieldBool, ""),
					req("inventory_document", "Inventario firmado", FieldDocument, ""),
				},
			},
			{
				Key: "rent_collection", Title: "Cobro de la renta", Kind: KindForm,
				Fields: []Field{
					req("first_rent_paid", "Primera renta cobrada", FieldBool, ""),
					req("payment_day", "Día de pago", FieldInteger, "gte=1,lte=28"),
					opt("direct_debit_iban", "IBAN de domiciliación", FieldText, "min=15,max=34"),
				},
			},
		},
	},
	{
		Key:   types.PhaseIPCUpdate,
		Title: "Actualización IPC",
		Sections: []Section{
			{
				Key: "ipc", Title: "Actualización de renta", Kind: KindForm,
				Fields: []Field{
					req("ipc_reference_month", "Mes de referencia", FieldText, "datetime=2006-01"),
					req("ipc_percentage", "IPC (%)", FieldNumber, "gte=-20,lte=20"),
					req("updated_rent", "Renta actualizada (€)", FieldNumber, "gt=0"),
					req("tenant_notified_date", "Fecha de notificación", FieldDate, ""),
				},
			},
		},
	},
	{
		Key:   types.PhaseRenewal,
		Title: "Renovación",
		Sections: []Section{
			{
				Key: "renewal_decision", Title: "Decisión de renovación", Kind: KindForm,
				Fields: []Field{
					enum("renewal_decision", "Decisión", "renew", "not_renew"),
					when(req("new_contract_end_date", "Nuevo fin de contrato", FieldDate, ""), "renewal_decision", "renew"),
					when(req("renewal_document", "Anexo de renovación", FieldDocument, ""), "renewal_decision", "renew"),
					when(req("non_renewal_notice_date", "Fecha de preaviso", FieldDate, ""), "renewal_decision", "not_renew"),
				},
			},
		},
	},
	{
		Key:   types.PhaseFinalization,
		Title: "Finalización",
		Sections: []Section{
			{
				Key: "exit", Title: "Salida", Kind: KindForm,
				Fields: []Field{
					req("exit_date", "Fecha de salida", FieldDate, ""),
					req("keys_returned", "Llaves devueltas", FieldBool, ""),
					req("exit_inspection_document", "Acta de salida", FieldDocument, ""),
				},
			},
			{
				Key: "deposit_settlement", Title: "Liquidación de fianza", Kind: KindForm,
				Fields: []Field{
					req("deposit_returned_amount", "Importe devuelto (€)", FieldNumber, "gte=0"),
					req("deposit_return_date", "Fecha de devolución", FieldDate, ""),
					opt("deductions_notes", "Deducciones", FieldText, "max=2000"),
				},
			},
			{
				Key: "closing", Title: "Cierre", Kind: KindChecklist,
				Items: []ChecklistItem{
					{Key: "utilities_reclaimed", Label: "Suministros recuperados"},
					{Key: "owner_notified", Label: "Propietario informado"},
				},
			},
		},
	},
}

package handlers

const (
	MessageFailedBodyRequest = "Failed to parse request body"
	MessageInvalidParam      = "Invalid path or query parameter"

	MessageSuccessGeneratePlan = "Meal plan generated"
	MessageFailedGeneratePlan  = "Failed to generate meal plan"
	MessageSuccessGetPlan      = "Meal plan retrieved"
	MessageFailedGetPlan       = "Failed to get meal plan"
	MessageSuccessRegenerate   = "Meal plan regenerated"
	MessageFailedRegenerate    = "Failed to regenerate meal plan"
	MessageSuccessRestore      = "Version restored"
	MessageFailedRestore       = "Failed to restore version"
	MessageSuccessGetHistory   = "Version history retrieved"
	MessageFailedGetHistory    = "Failed to get version history"
	MessageSuccessGetVersion   = "Version retrieved"
	MessageFailedGetVersion    = "Failed to get version"
	MessageSuccessGetDay       = "Day plan retrieved"
	MessageFailedGetDay        = "Failed to get day plan"
	MessageSuccessGetShopping  = "Shopping list retrieved"
	MessageFailedGetShopping   = "Failed to get shopping list"
	MessageSuccessGetSummary   = "Nutrition summary retrieved"
	MessageFailedGetSummary    = "Failed to get nutrition summary"

	MessageSuccessReplaceMeal = "Meal replaced"
	MessageFailedReplaceMeal  = "Failed to replace meal"
	MessageSuccessMoveMeal    = "Meal moved"
	MessageFailedMoveMeal     = "Failed to move meal"
	MessageSuccessAddCustom   = "Custom meal added"
	MessageFailedAddCustom    = "Failed to add custom meal"
	MessageSuccessDeleteMeal  = "Custom meal deleted"
	MessageFailedDeleteMeal   = "Failed to delete custom meal"

	MessageSuccessGetProfile    = "Profile retrieved"
	MessageFailedGetProfile     = "Failed to get profile"
	MessageSuccessSaveProfile   = "Profile saved"
	MessageFailedSaveProfile    = "Failed to save profile"
	MessageSuccessSaveStrategy  = "Strategy saved"
	MessageFailedSaveStrategy   = "Failed to save strategy"
	MessageSuccessGetUsage      = "Usage retrieved"
	MessageFailedGetUsage       = "Failed to get usage"
	MessageSuccessClip          = "Recipe clipped"
	MessageFailedClip           = "Failed to clip recipe"
	MessageSuccessIngest        = "Catalog ingestion finished"
	MessageFailedIngest         = "Failed to ingest catalog"
)

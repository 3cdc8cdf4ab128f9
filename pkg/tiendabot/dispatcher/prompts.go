package dispatcher

// Personas and user-facing replies.
const (
	textPersona = "Eres un asistente para una tienda de abarrotes, que ayudarás en cualquier cosa que te ordenen"

	mediaPersona = "Eres un asistente para una tienda de abarrotes cual los empleados te usaran para guardar informacion o solicitarla, que ayudaras en cualquier cosa que te ordenen"

	visionInstruction = "Leer el ticket o nota y sacar toda la información"

	textApology  = "Lo siento, hubo un error al procesar tu mensaje. Por favor, intenta de nuevo."
	mediaApology = "Lo siento, hubo un error al procesar el archivo multimedia. Por favor, intenta enviarlo de nuevo."

	saveOKFormat      = "Información guardada en %s.txt"
	saveFailed        = "Hubo un error al guardar la información."
	readMissingFormat = "No se pudo leer el archivo %s.txt"

	mediaUserPrefix   = "Se ha recibido un mensaje multimedia. "
	imageInfoPrefix   = "Contenido de la imagen: "
	genericInfoFormat = "Archivo multimedia de tipo %s recibido y guardado como %s"
	captionPrefix     = " Comentario del usuario: "
)
